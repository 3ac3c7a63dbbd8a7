package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(types.SHA256([]byte(seed)))
}

// run executes ix against fresh account views and returns them.
func run(t *testing.T, ix types.Instruction, accounts map[types.Pubkey]*types.Account) ([]*syscall.AccountInfo, error) {
	t.Helper()
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, accounts[meta.Pubkey], meta.IsSigner, meta.IsWritable)
	}
	ctx := syscall.NewExecutionContext(types.SystemProgramID, infos, ix.Data, 200_000)
	return infos, New().Execute(ctx, ix.Data)
}

func TestCreateAccount(t *testing.T) {
	funder := testPubkey("funder")
	newAcc := testPubkey("new")
	owner := testPubkey("owner")
	rent := uint64(types.RentExemptMinimum(49))

	infos, err := run(t, CreateAccount(funder, newAcc, rent, 49, owner), map[types.Pubkey]*types.Account{
		funder: types.NewAccount(types.Lamports(rent+10), types.SystemProgramID),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), *infos[0].Lamports)
	assert.Equal(t, rent, *infos[1].Lamports)
	assert.Len(t, infos[1].Data, 49)
	assert.Equal(t, owner, infos[1].Owner)
}

func TestCreateAccountErrors(t *testing.T) {
	funder := testPubkey("funder")
	newAcc := testPubkey("new")
	owner := testPubkey("owner")
	rent := uint64(types.RentExemptMinimum(10))
	rich := map[types.Pubkey]*types.Account{funder: types.NewAccount(1_000_000_000, types.SystemProgramID)}

	_, err := run(t, CreateAccount(funder, newAcc, rent-1, 10, owner), rich)
	assert.ErrorIs(t, err, ErrAccountNotRentExempt)

	_, err = run(t, CreateAccount(funder, newAcc, rent, 10, owner), map[types.Pubkey]*types.Account{
		funder: types.NewAccount(1, types.SystemProgramID),
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = run(t, CreateAccount(funder, newAcc, rent, 10, owner), map[types.Pubkey]*types.Account{
		funder: types.NewAccount(1_000_000_000, types.SystemProgramID),
		newAcc: types.NewAccount(1, types.SystemProgramID),
	})
	assert.ErrorIs(t, err, ErrAccountAlreadyExists)

	ix := CreateAccount(funder, newAcc, rent, 10, owner)
	ix.Accounts[1].IsSigner = false
	_, err = run(t, ix, rich)
	assert.ErrorIs(t, err, ErrAccountNotSigner)

	_, err = run(t, CreateAccount(funder, newAcc, rent, MaxAccountDataSize+1, owner), rich)
	assert.ErrorIs(t, err, ErrAccountDataTooLarge)
}

func TestTransfer(t *testing.T) {
	from := testPubkey("from")
	to := testPubkey("to")

	infos, err := run(t, Transfer(from, to, 40), map[types.Pubkey]*types.Account{
		from: types.NewAccount(100, types.SystemProgramID),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(60), *infos[0].Lamports)
	assert.Equal(t, uint64(40), *infos[1].Lamports)

	_, err = run(t, Transfer(from, to, 101), map[types.Pubkey]*types.Account{
		from: types.NewAccount(100, types.SystemProgramID),
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = run(t, Transfer(from, to, 1), map[types.Pubkey]*types.Account{
		from: types.NewAccountWithData(100, []byte{1}, testPubkey("program")),
	})
	assert.ErrorIs(t, err, ErrInvalidAccountOwner)
}

func TestAssignAndAllocate(t *testing.T) {
	acc := testPubkey("acc")
	owner := testPubkey("owner")

	infos, err := run(t, Allocate(acc, 16), map[types.Pubkey]*types.Account{
		acc: types.NewAccount(5, types.SystemProgramID),
	})
	require.NoError(t, err)
	assert.Len(t, infos[0].Data, 16)

	infos, err = run(t, Assign(acc, owner), map[types.Pubkey]*types.Account{
		acc: types.NewAccount(5, types.SystemProgramID),
	})
	require.NoError(t, err)
	assert.Equal(t, owner, infos[0].Owner)

	_, err = run(t, Assign(acc, owner), map[types.Pubkey]*types.Account{
		acc: types.NewAccount(5, owner),
	})
	assert.ErrorIs(t, err, ErrInvalidAccountOwner)
}

func TestUnknownInstruction(t *testing.T) {
	ctx := syscall.NewExecutionContext(types.SystemProgramID, nil, nil, 1000)
	assert.ErrorIs(t, New().Execute(ctx, []byte{99, 0, 0, 0}), ErrInvalidInstructionData)
	assert.ErrorIs(t, New().Execute(ctx, []byte{0}), ErrInvalidInstructionData)
}
