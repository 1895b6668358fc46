package checkout_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alovak/mxcheckout/checkout"
	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) *checkout.Repository {
	return map[string]func(t *testing.T) *checkout.Repository{
		"mem": func(t *testing.T) *checkout.Repository {
			return checkout.NewRepository()
		},
		"bolt": func(t *testing.T) *checkout.Repository {
			repo, err := checkout.NewBoltRepository(filepath.Join(t.TempDir(), "checkout.db"))
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}
}

func newRecord(app, externalID string) *models.ChargeRecord {
	return &models.ChargeRecord{
		ID:                     uuid.New().String(),
		ProcessorID:            models.ProcessorCharges,
		ExternalTransactionID:  externalID,
		ApplicationReferenceID: app,
		IdempotencyKey:         "cash_voucher-" + externalID,
		Method:                 models.MethodCashVoucher,
		AmountMinor:            15000,
		Currency:               "MXN",
		Status:                 models.StatusAwaitingPayment,
		VoucherReference:       "93456789012344",
		Raw:                    json.RawMessage(`{"id":"` + externalID + `"}`),
	}
}

func TestRepository(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("save and get", func(t *testing.T) {
				repo := open(t)
				rec := newRecord("APP-1", "ch_1")
				require.NoError(t, repo.SaveCharge(ctx, rec))
				require.False(t, rec.CreatedAt.IsZero())

				got, err := repo.GetCharge(ctx, models.ProcessorCharges, "ch_1")
				require.NoError(t, err)
				require.Equal(t, rec.ID, got.ID)
				require.Equal(t, int64(15000), got.AmountMinor)
				require.JSONEq(t, `{"id":"ch_1"}`, string(got.Raw))

				_, err = repo.GetCharge(ctx, models.ProcessorIntents, "ch_1")
				require.ErrorIs(t, err, checkout.ErrNotFound)
			})

			t.Run("saving again updates status only", func(t *testing.T) {
				repo := open(t)
				first := newRecord("APP-1", "ch_2")
				require.NoError(t, repo.SaveCharge(ctx, first))

				update := newRecord("APP-1", "ch_2")
				update.Status = models.StatusPaid
				update.VoucherReference = ""
				require.NoError(t, repo.SaveCharge(ctx, update))

				require.Equal(t, first.ID, update.ID)
				require.Equal(t, models.StatusPaid, update.Status)

				got, err := repo.GetCharge(ctx, models.ProcessorCharges, "ch_2")
				require.NoError(t, err)
				require.Equal(t, first.ID, got.ID)
				require.Equal(t, models.StatusPaid, got.Status)
				require.Equal(t, "93456789012344", got.VoucherReference)
				require.True(t, got.CreatedAt.Equal(first.CreatedAt))
			})

			t.Run("id reuse for another transaction conflicts", func(t *testing.T) {
				repo := open(t)
				first := newRecord("APP-1", "ch_3")
				require.NoError(t, repo.SaveCharge(ctx, first))

				other := newRecord("APP-1", "ch_4")
				other.ID = first.ID
				require.ErrorIs(t, repo.SaveCharge(ctx, other), checkout.ErrConflict)
			})

			t.Run("list by application", func(t *testing.T) {
				repo := open(t)
				for _, id := range []string{"ch_a", "ch_b"} {
					require.NoError(t, repo.SaveCharge(ctx, newRecord("APP-7", id)))
					time.Sleep(time.Millisecond)
				}
				require.NoError(t, repo.SaveCharge(ctx, newRecord("APP-8", "ch_c")))

				list, err := repo.ListByApplication(ctx, "APP-7")
				require.NoError(t, err)
				require.Len(t, list, 2)
				require.Equal(t, "ch_a", list[0].ExternalTransactionID)
				require.Equal(t, "ch_b", list[1].ExternalTransactionID)

				list, err = repo.ListByApplication(ctx, "APP-none")
				require.NoError(t, err)
				require.NotNil(t, list)
				require.Empty(t, list)
			})

			t.Run("record without processor is refused", func(t *testing.T) {
				repo := open(t)
				rec := newRecord("APP-1", "")
				require.Error(t, repo.SaveCharge(ctx, rec))
			})
		})
	}
}

func TestBoltRepositoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkout.db")
	ctx := context.Background()

	repo, err := checkout.NewBoltRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveCharge(ctx, newRecord("APP-1", "ch_1")))
	require.NoError(t, repo.Close())

	repo, err = checkout.NewBoltRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetCharge(ctx, models.ProcessorCharges, "ch_1")
	require.NoError(t, err)
	require.Equal(t, "APP-1", got.ApplicationReferenceID)
}
