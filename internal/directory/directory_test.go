package directory

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/types"
)

func newTestService(t *testing.T) (*Service, *accesscontrol.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&accesscontrol.RoleGrant{}, &Institution{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	roles := accesscontrol.NewService(db)
	if err := roles.Seed("admin"); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
	if err := roles.GrantRole("admin", accesscontrol.RoleAccess, "authority"); err != nil {
		t.Fatalf("failed to grant access role: %v", err)
	}
	return NewService(db, roles), roles
}

func TestRegisterAccountRequiresAccessRole(t *testing.T) {
	s, _ := newTestService(t)

	err := s.RegisterAccount("nobody", 394460, "stn")
	if !errors.Is(err, types.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if _, err := s.Resolve(394460); !errors.Is(err, types.ErrUnknownInstitution) {
		t.Fatal("rejected registration must not persist")
	}
}

func TestRegisterAccountLastWriteWins(t *testing.T) {
	s, _ := newTestService(t)

	if err := s.RegisterAccount("authority", 394460, "stn-old"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.RegisterAccount("authority", 394460, "stn-new"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	address, err := s.Resolve(394460)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if address != "stn-new" {
		t.Fatalf("expected the latest address, got %q", address)
	}
}

func TestResolveUnknownInstitution(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Resolve(999)
	if !errors.Is(err, types.ErrUnknownInstitution) {
		t.Fatalf("expected UnknownInstitution, got %v", err)
	}
}

func TestVerifyCaller(t *testing.T) {
	s, _ := newTestService(t)

	if err := s.RegisterAccount("authority", 12392, "bank-a"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ok, err := s.VerifyCaller(12392, "bank-a")
	if err != nil || !ok {
		t.Fatalf("expected registered address to verify, ok=%v err=%v", ok, err)
	}
	ok, err = s.VerifyCaller(12392, "impostor")
	if err != nil || ok {
		t.Fatalf("expected unregistered address to fail, ok=%v err=%v", ok, err)
	}
}
