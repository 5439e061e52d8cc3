// Package labels holds the class table compiled into the firmware. Its order
// is the order of the model's output vector.
package labels

// Table lists the classes by output index.
var Table = [...]string{
	"HP_ORIGINAL", // genuine HP cartridge
	"NAO_HP",      // non-HP or counterfeit
}

// Names returns the table as a slice. Callers must not modify it.
func Names() []string {
	return Table[:]
}
