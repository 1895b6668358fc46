package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/processor/fake"
	"github.com/stretchr/testify/require"
)

const intentsSecret = "sk_test_51Habc1111111111111"

func TestCredentialsCheckMasksKeys(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CHARGES_PUBLIC_KEY", "key_test_pub_0000001111")
	t.Setenv("CHARGES_PRIVATE_KEY", "key_test_9f8e7d6c5b4a39281706abcd")
	t.Setenv("INTENTS_PUBLIC_KEY", "")
	t.Setenv("INTENTS_SECRET_KEY", "")

	var out bytes.Buffer
	cmd := credentialsCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check"})
	require.NoError(t, cmd.Execute())

	require.Contains(t, out.String(), "key_test...abcd")
	require.NotContains(t, out.String(), "9f8e7d6c5b4a")
	require.Contains(t, out.String(), "missing (INTENTS_PUBLIC_KEY, INTENTS_SECRET_KEY)")
}

func TestCredentialsCheckFailsInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REPO_BACKEND", "bolt")
	t.Setenv("CHARGES_PUBLIC_KEY", "")
	t.Setenv("CHARGES_PRIVATE_KEY", "")

	cmd := credentialsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check"})
	require.Error(t, cmd.Execute())
}

func TestChargeAgainstDouble(t *testing.T) {
	srv := httptest.NewServer(fake.NewIntents(fake.WithKey(intentsSecret)))
	defer srv.Close()

	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("INTENTS_BASE_URL", srv.URL)
	t.Setenv("INTENTS_PUBLIC_KEY", "pk_test_51Habc2222222222222")
	t.Setenv("INTENTS_SECRET_KEY", intentsSecret)

	var out bytes.Buffer
	cmd := chargeCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--processor", "intents", "--method", "cash_voucher", "--amount", "150.00", "--reference", "APP-1"})
	require.NoError(t, cmd.Execute())

	var res models.ChargeResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, models.StatusAwaitingPayment, res.Status)
	require.NotEmpty(t, res.VoucherReference)

	out.Reset()
	lookup := lookupCmd()
	lookup.SetOut(&out)
	lookup.SetArgs([]string{"intents", res.ExternalTransactionID})
	require.NoError(t, lookup.Execute())
	require.Contains(t, out.String(), res.ExternalTransactionID)
}
