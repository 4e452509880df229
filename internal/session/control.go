package session

import "piloty/internal/ptyerr"

// controlBytes maps single-character mnemonics to the control byte a
// real terminal driver would generate for that
// keystroke.
var controlBytes = map[string]byte{
	"c": 0x03, // ETX, Ctrl-C
	"d": 0x04, // EOT, Ctrl-D
	"z": 0x1A, // SUB, Ctrl-Z
	"l": 0x0C, // FF,  Ctrl-L
	"[": 0x1B, // ESC
}

// controlByte translates a mnemonic to its byte, or an InvalidArgument
// error if the mnemonic isn't recognized.
func controlByte(key string) (byte, error) {
	b, ok := controlBytes[key]
	if !ok {
		return 0, ptyerr.New(ptyerr.InvalidArgument, "unknown control mnemonic: "+key)
	}
	return b, nil
}
