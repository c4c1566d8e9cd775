package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qcefs/efs2dump/pkg/efs2"
)

func TestIntOrHexDecimal(t *testing.T) {
	v, err := intorhex("1024")
	assert.NoError(t, err)
	assert.Equal(t, int64(1024), v)
}

func TestIntOrHexHexPrefixed(t *testing.T) {
	v, err := intorhex("0x800")
	assert.NoError(t, err)
	assert.Equal(t, int64(0x800), v)

	v, err = intorhex("0X20000")
	assert.NoError(t, err)
	assert.Equal(t, int64(0x20000), v)
}

func TestIntOrHexEmptyString(t *testing.T) {
	v, err := intorhex("")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestIntOrHexInvalid(t *testing.T) {
	_, err := intorhex("not-a-number")
	assert.Error(t, err)
}

func TestSetNumbersMode(t *testing.T) {
	defer func() { numbersMode = 0 }()

	assert.NoError(t, setNumbersMode("dec"))
	assert.Equal(t, 1, numbersMode)

	assert.NoError(t, setNumbersMode("HEX"))
	assert.Equal(t, 2, numbersMode)

	assert.NoError(t, setNumbersMode(""))
	assert.Equal(t, 0, numbersMode)

	assert.Error(t, setNumbersMode("garbage"))
}

func TestPrintableSizeShortForm(t *testing.T) {
	defer func() { numbersMode = 0 }()
	numbersMode = 0

	assert.Equal(t, "0", printableSize(0).String())
	assert.Equal(t, "4K", printableSize(4*1024).String())
	assert.Equal(t, "3M", printableSize(3*1024*1024).String())
	assert.Equal(t, "513", printableSize(513).String())
}

func TestPrintableSizeDecAndHex(t *testing.T) {
	defer func() { numbersMode = 0 }()

	numbersMode = 1
	assert.Equal(t, "2048", printableSize(2048).String())

	numbersMode = 2
	assert.Equal(t, "0x800", printableSize(2048).String())
}

func TestEccSpareTypeOf(t *testing.T) {
	assert.Equal(t, efs2.SpareStandard, eccSpareTypeOf("standard"))
	assert.Equal(t, efs2.SpareQCOM2K, eccSpareTypeOf("qcom"))
	assert.Equal(t, efs2.SpareRIFF, eccSpareTypeOf("anything-else"))
}
