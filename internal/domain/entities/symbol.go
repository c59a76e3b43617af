package entities

import (
	"encoding/hex"
	"fmt"
)

// SymbolReference points at the symbol file recorded in a binary image's
// debug directory.
type SymbolReference struct {
	FileName string
	GUID     [16]byte
	Age      uint32
}

// String renders the reference in symbol-store key form.
func (s SymbolReference) String() string {
	return fmt.Sprintf("%s %s %d", s.FileName, hex.EncodeToString(s.GUID[:]), s.Age)
}
