package pkg

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"unsafe"
)

const randStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// BytesToString converts bytes slice to a string without extra allocation
func BytesToString(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

// GenerateRandomBytes returns securely generated random bytes.
// It will return an error if the system's secure random
// number generator fails to function correctly, in which
// case the caller should not continue
func GenerateRandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("number of bytes must be greater than 0")
	}

	b := make([]byte, n)
	// note that err == nil only if we read len(b) bytes
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	return b, nil
}

// GenerateRandomString returns a securely generated random
// alphanumeric string of length s
func GenerateRandomString(s int) (string, error) {
	if s <= 0 {
		return "", errors.New("string length must be greater than 0")
	}

	b := make([]byte, s)
	for i := range b {
		charIndex, err := rand.Int(rand.Reader, big.NewInt(int64(len(randStringAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = randStringAlphabet[charIndex.Int64()]
	}

	return string(b), nil
}

// PathExists returns whether the given file or directory exists
func PathExists(path string, isDir bool) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if isDir && !stat.IsDir() {
		return false, fmt.Errorf("path %s is not a directory", path)
	}
	if !isDir && stat.IsDir() {
		return false, fmt.Errorf("path %s is not a file", path)
	}
	return true, nil
}
