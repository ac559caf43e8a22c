package services

import (
	"crypto/rand"
	"math/big"
)

// Picker draws a uniform integer in [0, n).
type Picker interface {
	Int64N(n int64) int64
}

// CryptoPicker draws from the operating system's secure random source.
type CryptoPicker struct{}

func (CryptoPicker) Int64N(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		// crypto/rand only fails when the OS source is unusable.
		panic(err)
	}
	return v.Int64()
}
