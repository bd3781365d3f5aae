package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felipemeriga/artemis/crypto"
	"github.com/felipemeriga/artemis/database"
	"github.com/felipemeriga/artemis/types"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "artemis-test-db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutBlockThenGetBlock(t *testing.T) {
	db := openTestDB(t)
	b := types.NewBlock(0, 0, nil, "")
	require.NoError(t, db.PutBlock(b))

	got, err := db.GetBlock(b.Hash)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, got.Hash)
}

func TestGetBlockNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetBlock("does-not-exist")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

// TestBalanceConservedUnderAcceptedBlock exercises testable property 8:
// balance after = balance before + coinbase reward, when the only
// transaction is the block's own coinbase.
func TestBalanceConservedUnderAcceptedBlock(t *testing.T) {
	db := openTestDB(t)

	minerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	minerAddr := minerKey.Address()

	before, err := db.Balance(minerAddr)
	require.NoError(t, err)
	assert.True(t, before.Equal(types.Amount{}))

	coinbase := types.NewCoinbase(minerAddr, types.MustAmount(5))
	b := types.NewBlock(1, 0, []*types.Transaction{coinbase}, "")
	require.NoError(t, db.PutBlock(b))

	after, err := db.Balance(minerAddr)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, after.Float64(), 1e-9)
}

func TestBalanceDeductsSenderAmountAndFee(t *testing.T) {
	db := openTestDB(t)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := senderKey.Address()
	recipient := "recipient-address"

	funding := types.NewCoinbase(sender, types.MustAmount(10))
	fundingBlock := types.NewBlock(1, 0, []*types.Transaction{funding}, "")
	require.NoError(t, db.PutBlock(fundingBlock))

	tx := types.NewTransaction(sender, recipient, types.MustAmount(3), types.MustAmount(0.1), 1000)
	require.NoError(t, tx.Sign(senderKey))
	spendBlock := types.NewBlock(2, 0, []*types.Transaction{tx}, fundingBlock.Hash)
	require.NoError(t, db.PutBlock(spendBlock))

	senderBalance, err := db.Balance(sender)
	require.NoError(t, err)
	assert.InDelta(t, 10.0-3.0-0.1, senderBalance.Float64(), 1e-9)

	recipientBalance, err := db.Balance(recipient)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, recipientBalance.Float64(), 1e-9)
}

func TestWalletTransactionsUnknownAddressIsEmpty(t *testing.T) {
	db := openTestDB(t)
	hashes, err := db.WalletTransactions("never-seen")
	require.NoError(t, err)
	assert.Empty(t, hashes)
}
