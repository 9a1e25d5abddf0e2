package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	AlphabetNumeric      = "numeric"
	AlphabetAlphanumeric = "alphanumeric"

	numericChars      = "0123456789"
	alphanumericChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // без 0/O и 1/I
)

// CodeGenerator выдаёт одноразовые коды.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodes — crypto/rand генератор заданной длины и алфавита.
type RandomCodes struct {
	Length   int
	Alphabet string
}

func NewRandomCodes(length int, alphabet string) *RandomCodes {
	if length <= 0 {
		length = 6
	}
	return &RandomCodes{Length: length, Alphabet: alphabet}
}

func (g *RandomCodes) Generate() (string, error) {
	chars := Charset(g.Alphabet)
	max := big.NewInt(int64(len(chars)))
	out := make([]byte, g.Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = chars[n.Int64()]
	}
	return string(out), nil
}

// Charset возвращает набор символов для алфавита (по умолчанию — цифры).
func Charset(alphabet string) string {
	if alphabet == AlphabetAlphanumeric {
		return alphanumericChars
	}
	return numericChars
}

var ErrBadCodeFormat = errors.New("code format mismatch")

// CheckCodeFormat — длина и символы совпадают с тем, что мы выдаём.
func CheckCodeFormat(code string, length int, alphabet string) error {
	if len(code) != length {
		return ErrBadCodeFormat
	}
	chars := Charset(alphabet)
	for i := 0; i < len(code); i++ {
		ok := false
		for j := 0; j < len(chars); j++ {
			if code[i] == chars[j] {
				ok = true
				break
			}
		}
		if !ok {
			return ErrBadCodeFormat
		}
	}
	return nil
}
