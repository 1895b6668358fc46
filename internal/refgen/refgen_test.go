package refgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoucher(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		v, err := Voucher(DefaultVoucherLen)
		require.NoError(t, err)
		require.Regexp(t, `^[1-9][0-9]{13}$`, v)
		require.True(t, ValidLuhn(v), v)
		seen[v] = true
	}
	require.Greater(t, len(seen), 190)

	_, err := Voucher(9)
	require.Error(t, err)
	_, err = Voucher(20)
	require.Error(t, err)
}

func TestLuhn(t *testing.T) {
	require.Equal(t, "3", LuhnDigit("7992739871"))
	require.True(t, ValidLuhn("79927398713"))
	require.False(t, ValidLuhn("79927398710"))
	require.False(t, ValidLuhn("7992739871a"))
}

func TestCLABE(t *testing.T) {
	// BBVA sample from Banxico documentation.
	require.True(t, ValidCLABE("032180000118359719"))
	require.False(t, ValidCLABE("032180000118359718"))
	require.False(t, ValidCLABE("03218000011835971"))

	for i := 0; i < 50; i++ {
		c, err := CLABE("646", "180")
		require.NoError(t, err)
		require.Len(t, c, 18)
		require.Equal(t, "646180", c[:6])
		require.True(t, ValidCLABE(c), c)
	}

	_, err := CLABE("12", "180")
	require.Error(t, err)
	_, err = CLABE("646", "1x0")
	require.Error(t, err)
}

func TestDigits(t *testing.T) {
	d, err := Digits(40)
	require.NoError(t, err)
	require.Len(t, d, 40)
	require.True(t, IsDigits(d))

	d, err = Digits(0)
	require.NoError(t, err)
	require.Empty(t, d)
}

func TestLastN(t *testing.T) {
	require.Equal(t, "9719", LastN("032180000118359719", 4))
	require.Equal(t, "12", LastN("12", 4))
}
