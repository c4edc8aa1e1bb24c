package instrument

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

var ltn = types.InstrumentData{
	Acronym:      "LTN",
	Code:         "12312",
	MaturityDate: 1734789963,
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&accesscontrol.RoleGrant{}, &Instrument{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	roles := accesscontrol.NewService(db)
	if err := roles.Seed("admin"); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
	return NewService(db, roles), db
}

// The derivation is a fixed contract: deterministic over identical fields
// and order-sensitive, so shifting bytes between fields changes the id.
func TestInstrumentIDDerivation(t *testing.T) {
	if DeriveID(ltn) != DeriveID(ltn) {
		t.Fatal("identical descriptors must derive identical ids")
	}

	cases := []struct {
		name string
		a, b types.InstrumentData
	}{
		{
			name: "different acronym",
			a:    types.InstrumentData{Acronym: "LTN", Code: "1", MaturityDate: 1},
			b:    types.InstrumentData{Acronym: "LFT", Code: "1", MaturityDate: 1},
		},
		{
			name: "field boundary shift",
			a:    types.InstrumentData{Acronym: "AB", Code: "C", MaturityDate: 1},
			b:    types.InstrumentData{Acronym: "A", Code: "BC", MaturityDate: 1},
		},
		{
			name: "swapped string fields",
			a:    types.InstrumentData{Acronym: "X", Code: "Y", MaturityDate: 1},
			b:    types.InstrumentData{Acronym: "Y", Code: "X", MaturityDate: 1},
		},
		{
			name: "different maturity",
			a:    types.InstrumentData{Acronym: "LTN", Code: "1", MaturityDate: 1},
			b:    types.InstrumentData{Acronym: "LTN", Code: "1", MaturityDate: 2},
		},
	}
	for _, tc := range cases {
		if DeriveID(tc.a) == DeriveID(tc.b) {
			t.Errorf("%s: distinct descriptors must not collide", tc.name)
		}
	}
}

func TestCreateRequiresAdmin(t *testing.T) {
	s, _ := newTestService(t)

	if _, err := s.Create("nobody", ltn); !errors.Is(err, types.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if _, err := s.Resolve(ltn); !errors.Is(err, types.ErrInstrumentNotFound) {
		t.Fatal("rejected create must not persist")
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	s, _ := newTestService(t)

	first, err := s.Create("admin", ltn)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := s.Create("admin", ltn)
	if err != nil {
		t.Fatalf("idempotent create failed: %v", err)
	}
	if first != second {
		t.Fatalf("idempotent create returned a different id: %s vs %s", first, second)
	}
}

func TestCreateRejectsIDBoundToDifferentData(t *testing.T) {
	s, db := newTestService(t)

	// Plant a row claiming this descriptor's id but holding other fields,
	// the situation the collision defense must reject.
	if err := db.Create(&Instrument{
		InstrumentID: DeriveID(ltn),
		Acronym:      "LFT",
		Code:         "999",
		MaturityDate: 1,
	}).Error; err != nil {
		t.Fatalf("failed to plant row: %v", err)
	}

	_, err := s.Create("admin", ltn)
	if !errors.Is(err, types.ErrInstrumentAlreadyExists) {
		t.Fatalf("expected InstrumentAlreadyExists, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	s, _ := newTestService(t)

	if _, err := s.Resolve(ltn); !errors.Is(err, types.ErrInstrumentNotFound) {
		t.Fatalf("expected InstrumentNotFound before create, got %v", err)
	}

	id, err := s.Create("admin", ltn)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	resolved, err := s.Resolve(ltn)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved != id {
		t.Fatalf("resolve returned %s, want %s", resolved, id)
	}
}
