// Package state tracks which dialog step each chat is in.
package state
