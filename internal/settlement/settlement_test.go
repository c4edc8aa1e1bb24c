package settlement

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/bond"
	"github.com/jeftarmascarenhas/drex-temporary/internal/currency"
	"github.com/jeftarmascarenhas/drex-temporary/internal/directory"
	"github.com/jeftarmascarenhas/drex-temporary/internal/instrument"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

const (
	stnInstitutionID   = 394460
	bankAInstitutionID = 12392

	operationID = 121112024
	bondAmount  = 10000
	unitPrice   = 200000000
	payment     = uint64(bondAmount) * uint64(unitPrice)

	engineAddress = "settlement-engine"
)

var ltn = types.InstrumentData{
	Acronym:      "LTN",
	Code:         "12312",
	MaturityDate: 1734789963,
}

type fixture struct {
	engine       *Service
	roles        *accesscontrol.Service
	bonds        *bond.Service
	currency     *currency.Service
	instrumentID string
}

// newFixture provisions a complete network: roles, directory entries,
// allow-list, the LTN instrument, the seller's bond position, the buyer's
// funds and the engine's payment allowance.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&accesscontrol.RoleGrant{},
		&directory.Institution{},
		&instrument.Instrument{},
		&bond.Position{},
		&bond.EnabledAddress{},
		&currency.Account{},
		&currency.Allowance{},
		&Operation{},
		&Event{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	roles := accesscontrol.NewService(db)
	if err := roles.Seed("admin"); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
	for _, grant := range []struct{ role, holder string }{
		{accesscontrol.RoleAccess, "authority"},
		{accesscontrol.RoleMinter, "authority"},
		{accesscontrol.RoleAuctionPlacement, engineAddress},
	} {
		if err := roles.GrantRole("admin", grant.role, grant.holder); err != nil {
			t.Fatalf("failed to grant %s: %v", grant.role, err)
		}
	}

	dir := directory.NewService(db, roles)
	if err := dir.RegisterAccount("authority", stnInstitutionID, "stn"); err != nil {
		t.Fatalf("failed to register STN: %v", err)
	}
	if err := dir.RegisterAccount("authority", bankAInstitutionID, "bank-a"); err != nil {
		t.Fatalf("failed to register Bank A: %v", err)
	}

	instruments := instrument.NewService(db, roles)
	instrumentID, err := instruments.Create("admin", ltn)
	if err != nil {
		t.Fatalf("failed to create instrument: %v", err)
	}

	bonds := bond.NewService(db, roles, instruments)
	for _, address := range []string{"stn", "bank-a"} {
		if err := bonds.Enable("authority", address); err != nil {
			t.Fatalf("failed to enable %s: %v", address, err)
		}
	}
	if err := bonds.Mint("authority", "stn", ltn, bondAmount); err != nil {
		t.Fatalf("failed to mint bonds: %v", err)
	}

	cur := currency.NewService(db, roles)
	if err := cur.Mint("authority", "bank-a", payment); err != nil {
		t.Fatalf("failed to mint currency: %v", err)
	}
	if err := cur.Approve("bank-a", engineAddress, payment); err != nil {
		t.Fatalf("failed to approve engine: %v", err)
	}

	engine := NewService(db, roles, dir, instruments, bonds, cur, engineAddress)
	return &fixture{
		engine:       engine,
		roles:        roles,
		bonds:        bonds,
		currency:     cur,
		instrumentID: instrumentID,
	}
}

func confirmRequest() ConfirmRequest {
	return ConfirmRequest{
		OperationID:           operationID,
		SenderInstitutionID:   stnInstitutionID,
		ReceiverInstitutionID: bankAInstitutionID,
		Instrument:            ltn,
		Amount:                bondAmount,
		UnitPrice:             unitPrice,
	}
}

func (f *fixture) bondBalance(t *testing.T, holder string) uint64 {
	t.Helper()
	got, err := f.bonds.BalanceOf(holder, f.instrumentID)
	if err != nil {
		t.Fatalf("bond balance query failed: %v", err)
	}
	return got
}

func (f *fixture) currencyBalance(t *testing.T, holder string) uint64 {
	t.Helper()
	got, err := f.currency.BalanceOf(holder)
	if err != nil {
		t.Fatalf("currency balance query failed: %v", err)
	}
	return got
}

func (f *fixture) snapshot(t *testing.T) map[string]uint64 {
	t.Helper()
	return map[string]uint64{
		"stn-bond":        f.bondBalance(t, "stn"),
		"bank-a-bond":     f.bondBalance(t, "bank-a"),
		"stn-currency":    f.currencyBalance(t, "stn"),
		"bank-a-currency": f.currencyBalance(t, "bank-a"),
	}
}

func (f *fixture) requireUnchanged(t *testing.T, before map[string]uint64) {
	t.Helper()
	after := f.snapshot(t)
	for key, want := range before {
		if after[key] != want {
			t.Fatalf("%s changed: %d -> %d", key, want, after[key])
		}
	}
}

func TestDualConfirmationSettlement(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("sender confirmation failed: %v", err)
	}

	op, err := f.engine.Query(operationID)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if op.Status != StatusPending || !op.SenderConfirmed || op.ReceiverConfirmed {
		t.Fatalf("unexpected state after first confirmation: %+v", op)
	}

	req.CallerPart = types.CallerPartReceiver
	if err := f.engine.Confirm("bank-a", req); err != nil {
		t.Fatalf("receiver confirmation failed: %v", err)
	}

	op, err = f.engine.Query(operationID)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if op.Status != StatusExecuted {
		t.Fatalf("status = %s, want %s", op.Status, StatusExecuted)
	}

	if got := f.bondBalance(t, "stn"); got != 0 {
		t.Fatalf("STN bond balance = %d, want 0", got)
	}
	if got := f.bondBalance(t, "bank-a"); got != bondAmount {
		t.Fatalf("Bank A bond balance = %d, want %d", got, bondAmount)
	}
	if got := f.currencyBalance(t, "stn"); got != payment {
		t.Fatalf("STN currency balance = %d, want %d", got, payment)
	}
	if got := f.currencyBalance(t, "bank-a"); got != 0 {
		t.Fatalf("Bank A currency balance = %d, want 0", got)
	}

	// Settlement moves value, it never creates or destroys it.
	supply, err := f.bonds.TotalSupply(f.instrumentID)
	if err != nil {
		t.Fatalf("bond supply query failed: %v", err)
	}
	if supply != bondAmount {
		t.Fatalf("bond supply = %d, want %d", supply, bondAmount)
	}
	currencySupply, err := f.currency.TotalSupply()
	if err != nil {
		t.Fatalf("currency supply query failed: %v", err)
	}
	if currencySupply != payment {
		t.Fatalf("currency supply = %d, want %d", currencySupply, payment)
	}
}

func TestConfirmUnknownInstrument(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	req.Instrument = types.InstrumentData{Acronym: "NTN-B", Code: "777", MaturityDate: 1}

	err := f.engine.Confirm("stn", req)
	if !errors.Is(err, types.ErrInstrumentNotFound) {
		t.Fatalf("expected InstrumentNotFound, got %v", err)
	}
	if _, err := f.engine.Query(operationID); !errors.Is(err, types.ErrOperationNotFound) {
		t.Fatal("no record may be created for an unknown instrument")
	}
}

func TestConfirmUnauthorizedCaller(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender

	// An address that is not the registered settlement account of the
	// claimed institution must be rejected with nothing recorded.
	err := f.engine.Confirm("impostor", req)
	if !errors.Is(err, types.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}

	// Claiming the wrong part fails the same way.
	req.CallerPart = types.CallerPartReceiver
	err = f.engine.Confirm("stn", req)
	if !errors.Is(err, types.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized for wrong part, got %v", err)
	}

	if _, err := f.engine.Query(operationID); !errors.Is(err, types.ErrOperationNotFound) {
		t.Fatal("no record may be created by an unauthorized caller")
	}
	f.requireUnchanged(t, before)
}

func TestFirstConfirmationRequiresEngineRole(t *testing.T) {
	f := newFixture(t)
	if err := f.roles.RevokeRole("admin", accesscontrol.RoleAuctionPlacement, engineAddress); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	err := f.engine.Confirm("stn", req)
	if !errors.Is(err, types.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized without engine role, got %v", err)
	}
	if _, err := f.engine.Query(operationID); !errors.Is(err, types.ErrOperationNotFound) {
		t.Fatal("no record may be created without the engine role")
	}
}

func TestDuplicateConfirmation(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}

	err := f.engine.Confirm("stn", req)
	if !errors.Is(err, types.ErrDuplicateConfirmation) {
		t.Fatalf("expected DuplicateConfirmation, got %v", err)
	}

	op, _ := f.engine.Query(operationID)
	if op.Status != StatusPending || op.ReceiverConfirmed {
		t.Fatalf("duplicate confirmation must not change state: %+v", op)
	}
}

func TestTermsMismatchLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}

	mismatched := confirmRequest()
	mismatched.CallerPart = types.CallerPartReceiver
	mismatched.UnitPrice = unitPrice + 1
	err := f.engine.Confirm("bank-a", mismatched)
	if !errors.Is(err, types.ErrTermsMismatch) {
		t.Fatalf("expected TermsMismatch, got %v", err)
	}

	op, _ := f.engine.Query(operationID)
	if op.UnitPrice != unitPrice || op.ReceiverConfirmed || op.Status != StatusPending {
		t.Fatalf("mismatch must leave the record unchanged: %+v", op)
	}
}

func TestConfirmAfterExecuted(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("sender confirmation failed: %v", err)
	}
	req.CallerPart = types.CallerPartReceiver
	if err := f.engine.Confirm("bank-a", req); err != nil {
		t.Fatalf("receiver confirmation failed: %v", err)
	}

	before := f.snapshot(t)
	for _, caller := range []struct {
		address string
		part    uint8
	}{
		{"stn", types.CallerPartSender},
		{"bank-a", types.CallerPartReceiver},
	} {
		retry := confirmRequest()
		retry.CallerPart = caller.part
		err := f.engine.Confirm(caller.address, retry)
		if !errors.Is(err, types.ErrOperationAlreadyExecuted) {
			t.Fatalf("expected OperationAlreadyExecuted, got %v", err)
		}
	}
	f.requireUnchanged(t, before)
}

// A failed currency leg must roll back the bond leg and leave the record
// Pending with both confirmations retained; fixing the allowance and
// re-confirming completes the settlement.
func TestAtomicityCurrencyLegFailure(t *testing.T) {
	f := newFixture(t)

	// Drop the engine's allowance so the payment leg cannot run.
	if err := f.currency.Approve("bank-a", engineAddress, 0); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	before := f.snapshot(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("sender confirmation failed: %v", err)
	}
	req.CallerPart = types.CallerPartReceiver
	err := f.engine.Confirm("bank-a", req)
	if !errors.Is(err, types.ErrInsufficientAllowance) {
		t.Fatalf("expected InsufficientAllowance, got %v", err)
	}

	f.requireUnchanged(t, before)
	op, _ := f.engine.Query(operationID)
	if op.Status != StatusPending || !op.SenderConfirmed || !op.ReceiverConfirmed {
		t.Fatalf("failed execution must leave a fully confirmed Pending record: %+v", op)
	}

	// Restore the allowance; a matching re-confirmation retries the
	// execution instead of failing as a duplicate.
	if err := f.currency.Approve("bank-a", engineAddress, payment); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := f.engine.Confirm("bank-a", req); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	op, _ = f.engine.Query(operationID)
	if op.Status != StatusExecuted {
		t.Fatalf("status = %s after retry, want %s", op.Status, StatusExecuted)
	}
}

func TestAtomicityBondLegFailure(t *testing.T) {
	f := newFixture(t)

	// Drain the seller's position so the delivery leg cannot run.
	if err := f.bonds.Transfer("stn", "bank-a", f.instrumentID, bondAmount); err != nil {
		t.Fatalf("setup transfer failed: %v", err)
	}
	before := f.snapshot(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("sender confirmation failed: %v", err)
	}
	req.CallerPart = types.CallerPartReceiver
	err := f.engine.Confirm("bank-a", req)
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}

	// Neither leg may have moved: payment stays with the buyer and the
	// engine's allowance is intact.
	f.requireUnchanged(t, before)
	remaining, err := f.currency.GetAllowance("bank-a", engineAddress)
	if err != nil {
		t.Fatalf("allowance query failed: %v", err)
	}
	if remaining != payment {
		t.Fatalf("allowance = %d, want %d after rollback", remaining, payment)
	}
}

func TestConcurrentFirstConfirmations(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.engine.Confirm("stn", req)
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, types.ErrDuplicateConfirmation):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != 1 {
		t.Fatalf("want exactly one created and one duplicate, got %d/%d", successes, duplicates)
	}

	op, err := f.engine.Query(operationID)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if op.Status != StatusPending || !op.SenderConfirmed || op.ReceiverConfirmed {
		t.Fatalf("unexpected state after racing confirmations: %+v", op)
	}
}

func TestQueryUnknownOperation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.Query(42); !errors.Is(err, types.ErrOperationNotFound) {
		t.Fatalf("expected OperationNotFound, got %v", err)
	}
	if _, err := f.engine.Events(42); !errors.Is(err, types.ErrOperationNotFound) {
		t.Fatalf("expected OperationNotFound for events, got %v", err)
	}
}

func TestEventsRecordTransitions(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("sender confirmation failed: %v", err)
	}
	req.CallerPart = types.CallerPartReceiver
	if err := f.engine.Confirm("bank-a", req); err != nil {
		t.Fatalf("receiver confirmation failed: %v", err)
	}

	events, err := f.engine.Events(operationID)
	if err != nil {
		t.Fatalf("events query failed: %v", err)
	}

	var confirmations, executions int
	for _, event := range events {
		switch event.Type {
		case EventConfirmationRecorded:
			confirmations++
		case EventExecuted:
			executions++
		}
	}
	if confirmations != 2 {
		t.Fatalf("confirmation events = %d, want 2", confirmations)
	}
	if executions != 1 {
		t.Fatalf("execution events = %d, want 1", executions)
	}
}

func TestConfirmOverflowingTermsRejected(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot(t)

	// amount*unitPrice wraps uint64 to 0: the bonds would change hands
	// for nothing if the product were taken at face value.
	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	req.Amount = 1 << 32
	req.UnitPrice = 1 << 32

	err := f.engine.Confirm("stn", req)
	if !errors.Is(err, types.ErrNumericOverflow) {
		t.Fatalf("expected NumericOverflow, got %v", err)
	}
	if _, err := f.engine.Query(operationID); !errors.Is(err, types.ErrOperationNotFound) {
		t.Fatal("no record may be created for overflowing terms")
	}
	f.requireUnchanged(t, before)
}

func TestLockReleasedAfterExecution(t *testing.T) {
	f := newFixture(t)

	req := confirmRequest()
	req.CallerPart = types.CallerPartSender
	if err := f.engine.Confirm("stn", req); err != nil {
		t.Fatalf("sender confirmation failed: %v", err)
	}
	if len(f.engine.locks) != 1 {
		t.Fatalf("locks = %d, want 1 while pending", len(f.engine.locks))
	}

	req.CallerPart = types.CallerPartReceiver
	if err := f.engine.Confirm("bank-a", req); err != nil {
		t.Fatalf("receiver confirmation failed: %v", err)
	}
	if len(f.engine.locks) != 0 {
		t.Fatalf("locks = %d, want 0 after execution", len(f.engine.locks))
	}

	// A late confirmation on the executed operation still resolves
	// against the stored record.
	req.CallerPart = types.CallerPartSender
	err := f.engine.Confirm("stn", req)
	if !errors.Is(err, types.ErrOperationAlreadyExecuted) {
		t.Fatalf("expected OperationAlreadyExecuted, got %v", err)
	}
	if len(f.engine.locks) != 0 {
		t.Fatalf("locks = %d, want 0 after terminal-state confirmation", len(f.engine.locks))
	}
}
