package trie

// Trie keys are dealt with in two encodings:
//
// KEY encoding - the raw byte key, as stored in the database
// HEX encoding - one byte per nibble, no terminator; this is the form all
// in-memory operations and prefix sets use
//
// On disk leaf paths additionally use COMPACT ("hex prefix") encoding, which
// folds the odd/even length and leaf/extension distinction into the first
// nibble.

func keybytesToHex(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b / 16
		nibbles[i*2+1] = b % 16
	}
	return nibbles
}

// hexPrefix converts a HEX encoded path into COMPACT encoding.
func hexPrefix(nibbles []byte, leaf bool) []byte {
	var flag byte
	if leaf {
		flag = 2
	}
	odd := len(nibbles)%2 == 1
	out := make([]byte, len(nibbles)/2+1)
	if odd {
		out[0] = (flag + 1) << 4
		out[0] |= nibbles[0]
		nibbles = nibbles[1:]
	} else {
		out[0] = flag << 4
	}
	for i := 0; i < len(nibbles); i += 2 {
		out[i/2+1] = nibbles[i]<<4 | nibbles[i+1]
	}
	return out
}

// commonPrefixLen returns the length of the longest common prefix of a and b.
func commonPrefixLen(a, b []byte) int {
	var i int
	for i = 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			break
		}
	}
	return i
}
