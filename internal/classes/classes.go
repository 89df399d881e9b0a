package classes

import (
	"fmt"
)

// Class is one of the known blood-cell classes, or Unrecognized.
type Class int

const (
	// Unrecognized marks a label outside the known mapping table.
	Unrecognized Class = iota
	RBC
	WBC
	Platelets
)

// Known lists the counted classes in their canonical column order.
var Known = []Class{RBC, WBC, Platelets}

var classNames = map[Class]string{
	Unrecognized: "unrecognized",
	RBC:          "RBC",
	WBC:          "WBC",
	Platelets:    "Platelets",
}

// labelTable maps every accepted raw label variant to its class.
// Matching is exact; "Rbc" or "PLATELETS" are not in the table.
var labelTable = map[string]Class{
	"RBC":       RBC,
	"WBC":       WBC,
	"Platelets": Platelets,
	"rbc":       RBC,
	"wbc":       WBC,
	"platelets": Platelets,
	"platelet":  Platelets,
}

// String returns the canonical name of the class.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// IsKnown reports whether c is one of the counted classes.
func (c Class) IsKnown() bool {
	return c == RBC || c == WBC || c == Platelets
}

// MarshalText implements encoding.TextMarshaler so classes can be used as JSON map keys.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(text []byte) error {
	s := string(text)
	if s == classNames[Unrecognized] {
		*c = Unrecognized
		return nil
	}
	parsed := Parse(s)
	if parsed == Unrecognized {
		return fmt.Errorf("unknown class %q", s)
	}
	*c = parsed
	return nil
}

// Parse maps a raw detector label to its class. Labels outside the mapping table
// return Unrecognized.
func Parse(raw string) Class {
	if c, ok := labelTable[raw]; ok {
		return c
	}
	return Unrecognized
}

// Normalize returns the canonical name for a raw detector label.
//
// Recognized labels ("rbc", "platelet", "WBC", ...) map to "RBC", "WBC" or
// "Platelets". Anything else is returned unchanged; an unknown label is not an error.
func Normalize(raw string) string {
	if c, ok := labelTable[raw]; ok {
		return c.String()
	}
	return raw
}
