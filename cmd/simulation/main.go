package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/bond"
	"github.com/jeftarmascarenhas/drex-temporary/internal/currency"
	"github.com/jeftarmascarenhas/drex-temporary/internal/database"
	"github.com/jeftarmascarenhas/drex-temporary/internal/directory"
	"github.com/jeftarmascarenhas/drex-temporary/internal/instrument"
	"github.com/jeftarmascarenhas/drex-temporary/internal/settlement"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

// Network identities for the demo run. STN delivers the bond, Bank A
// pays; the authority provisions directory entries and the allow-list.
const (
	adminAddress     = "admin"
	authorityAddress = "authority"
	stnAddress       = "stn"
	bankAAddress     = "bank-a"
	engineAddress    = "settlement-engine"

	stnInstitutionID   = 394460
	bankAInstitutionID = 12392

	operationID = 121112024
	bondAmount  = 10000
	unitPrice   = 200000000
)

var instrumentData = types.InstrumentData{
	Acronym:      "LTN",
	Code:         "12312",
	MaturityDate: 1734789963,
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// main provisions a fresh network and runs one complete dual-confirmation
// DvP settlement between STN and Bank A.
func main() {
	if os.Getenv("SQLITE_PATH") == "" {
		os.Setenv("SQLITE_PATH", "simulation.db")
	}

	db, err := database.NewDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	roles := accesscontrol.NewService(db)
	dir := directory.NewService(db, roles)
	instruments := instrument.NewService(db, roles)
	bonds := bond.NewService(db, roles, instruments)
	cur := currency.NewService(db, roles)
	engine := settlement.NewService(db, roles, dir, instruments, bonds, cur, engineAddress)

	provision(roles, dir, instruments, bonds, cur)
	runSettlement(engine)
	reportBalances(bonds, cur, instruments)
}

// provision mirrors the network bootstrap: roles, directory entries,
// allow-list, instrument creation, initial mints and the payment
// allowance for the engine.
func provision(
	roles *accesscontrol.Service,
	dir *directory.Service,
	instruments *instrument.Service,
	bonds *bond.Service,
	cur *currency.Service,
) {
	log.Info().Msg("provisioning settlement network")

	must(roles.Seed(adminAddress))
	must(roles.GrantRole(adminAddress, accesscontrol.RoleAccess, authorityAddress))
	must(roles.GrantRole(adminAddress, accesscontrol.RoleMinter, authorityAddress))
	must(roles.GrantRole(adminAddress, accesscontrol.RoleAuctionPlacement, engineAddress))

	// Institution directory: CNPJ8 code to settlement address.
	must(dir.RegisterAccount(authorityAddress, stnInstitutionID, stnAddress))
	must(dir.RegisterAccount(authorityAddress, bankAInstitutionID, bankAAddress))

	// Bond allow-list and issuance to the seller.
	must(bonds.Enable(authorityAddress, stnAddress))
	must(bonds.Enable(authorityAddress, bankAAddress))

	instrumentID, err := instruments.Create(adminAddress, instrumentData)
	must(err)
	log.Info().Str("instrument_id", instrumentID).Msg("instrument registered")

	must(bonds.Mint(authorityAddress, stnAddress, instrumentData, bondAmount))

	// Payment funds for the buyer plus the engine's spending allowance.
	payment := uint64(bondAmount) * uint64(unitPrice)
	must(cur.Mint(authorityAddress, bankAAddress, payment))
	must(cur.Approve(bankAAddress, engineAddress, payment))

	log.Info().Msg("provisioning complete")
}

// runSettlement submits both confirmations for the operation, sender
// first, exactly as the two counterparties would independently.
func runSettlement(engine *settlement.Service) {
	confirm := settlement.ConfirmRequest{
		OperationID:           operationID,
		SenderInstitutionID:   stnInstitutionID,
		ReceiverInstitutionID: bankAInstitutionID,
		Instrument:            instrumentData,
		Amount:                bondAmount,
		UnitPrice:             unitPrice,
	}

	confirm.CallerPart = types.CallerPartSender
	must(engine.Confirm(stnAddress, confirm))
	log.Info().Msg("sender confirmation accepted, operation pending")

	confirm.CallerPart = types.CallerPartReceiver
	must(engine.Confirm(bankAAddress, confirm))

	op, err := engine.Query(operationID)
	must(err)
	log.Info().
		Uint64("operation_id", op.OperationID).
		Str("status", op.Status).
		Msg("settlement operation completed")
}

func reportBalances(bonds *bond.Service, cur *currency.Service, instruments *instrument.Service) {
	instrumentID, err := instruments.Resolve(instrumentData)
	must(err)

	for _, holder := range []string{stnAddress, bankAAddress} {
		bondBalance, err := bonds.BalanceOf(holder, instrumentID)
		must(err)
		currencyBalance, err := cur.BalanceOf(holder)
		must(err)
		log.Info().
			Str("holder", holder).
			Uint64("bond_balance", bondBalance).
			Uint64("currency_balance", currencyBalance).
			Msg("final balances")
	}
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("simulation step failed")
	}
}
