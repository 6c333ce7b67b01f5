package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/accounts"
	"github.com/otherjamesbrown/agency-service/internal/bindings"
	"github.com/otherjamesbrown/agency-service/internal/claims"
	"github.com/otherjamesbrown/agency-service/internal/cli/clierrors"
	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/persons"
	"github.com/otherjamesbrown/agency-service/internal/policies"
	"github.com/otherjamesbrown/agency-service/internal/security"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// DemoUsername is the self-service account created with --demo.
const DemoUsername = "jan.novak"

// SeedCommand creates the first administrator and, optionally, demo data.
func SeedCommand(g *globals) *cobra.Command {
	var (
		username     string
		password     string
		demo         bool
		demoPassword string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create an administrator account and optional demo data",
		Long: `seed creates an enabled administrator account. Running it again with the
same username leaves the existing account untouched.

With --demo it also creates a self-service account (jan.novak) linked to a
person, a second person, two policies, a shared binding and a claim.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" || password == "" {
				return clierrors.NewValidationError("--username and --password are required", "Pass both flags.")
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			seeder := NewSeeder(store, g.logger())
			admin, created, err := seeder.Admin(ctx, username, password)
			if err != nil {
				return seedError(err)
			}
			rows := [][]string{{"admin account", admin.Username, createdLabel(created)}}
			summary := map[string]any{"adminCreated": created}

			var demoResult *DemoResult
			if demo {
				res, err := seeder.Demo(ctx, demoPassword)
				if err != nil {
					return seedError(err)
				}
				demoResult = &res
				rows = append(rows, []string{"demo data", DemoUsername, createdLabel(!res.Skipped)})
				summary["demoCreated"] = !res.Skipped
			}

			return emit(cmd.OutOrStdout(), cfg, result{
				command: "seed",
				headers: []string{"ITEM", "NAME", "RESULT"},
				rows:    rows,
				data:    map[string]any{"admin": admin, "demo": demoResult},
				summary: summary,
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Administrator username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Administrator password (required)")
	cmd.Flags().BoolVar(&demo, "demo", false, "Also create demo persons, policies and claims")
	cmd.Flags().StringVar(&demoPassword, "demo-password", "demo", "Password of the demo self-service account")
	return cmd
}

func createdLabel(created bool) string {
	if created {
		return "created"
	}
	return "exists"
}

func seedError(err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return clierrors.NewValidationError(verr.Error(), "Fix the flag values and retry.")
	}
	return clierrors.NewOperationError("seed", err)
}

// Seeder writes initial rows through the domain managers.
type Seeder struct {
	store    *postgres.Store
	accounts *accounts.Manager
	persons  *persons.Manager
	policies *policies.Manager
	claims   *claims.Manager
	logger   *zap.Logger
	today    func() domain.Date
}

// NewSeeder wires managers over store. No lockout is used.
func NewSeeder(store *postgres.Store, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		store:    store,
		accounts: accounts.NewManager(store, nil, logger),
		persons:  persons.NewManager(store, logger),
		policies: policies.NewManager(store, bindings.NewManager(store, logger), logger),
		claims:   claims.NewManager(store, logger),
		logger:   logger.With(zap.String("component", "seed")),
		today:    domain.Today,
	}
}

// Admin creates an administrator holding ROLE_USER and ROLE_ADMIN. It
// reports false when the username already exists.
func (s *Seeder) Admin(ctx context.Context, username, password string) (domain.Account, bool, error) {
	username = strings.TrimSpace(username)
	existing, err := s.store.GetAccountByUsername(ctx, username)
	if err == nil {
		s.logger.Info("admin account exists", zap.Int64("account_id", existing.ID))
		return existing, false, nil
	}
	if !errors.Is(err, postgres.ErrNotFound) {
		return domain.Account{}, false, fmt.Errorf("lookup account: %w", err)
	}

	if err := accounts.ValidateNewPassword(password, password); err != nil {
		return domain.Account{}, false, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("hash password: %w", err)
	}
	acct, err := s.store.CreateAccount(ctx, postgres.CreateAccountParams{
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		Roles:        []string{domain.RoleNameUser, domain.RoleNameAdmin},
	})
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin account created", zap.Int64("account_id", acct.ID))
	return acct, true, nil
}

// DemoResult lists the ids created by Demo.
type DemoResult struct {
	Skipped   bool    `json:"skipped"`
	AccountID int64   `json:"accountId,omitempty"`
	PersonIDs []int64 `json:"personIds,omitempty"`
	PolicyIDs []int64 `json:"policyIds,omitempty"`
	ClaimIDs  []int64 `json:"claimIds,omitempty"`
}

// Demo creates the demo data set unless the demo account already exists.
func (s *Seeder) Demo(ctx context.Context, password string) (DemoResult, error) {
	acct, err := s.accounts.Register(ctx, accounts.RegisterRequest{
		Username:      DemoUsername,
		Password:      password,
		PasswordAgain: password,
	})
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return DemoResult{Skipped: true}, nil
	}
	if err != nil {
		return DemoResult{}, fmt.Errorf("register demo account: %w", err)
	}
	res := DemoResult{AccountID: acct.ID}

	jan, _, err := s.accounts.SaveProfile(ctx, DemoUsername, domain.Person{
		FirstName:   "Jan",
		LastName:    "Novák",
		Phone:       "+420 777 123 456",
		Age:         42,
		Email:       "jan.novak@example.com",
		Gender:      "M",
		City:        "Praha",
		Street:      "Karlova",
		HouseNumber: "12",
		PostalCode:  "110 00",
	})
	if err != nil {
		return DemoResult{}, fmt.Errorf("demo profile: %w", err)
	}
	eva, err := s.persons.Create(ctx, domain.Person{
		FirstName: "Eva",
		LastName:  "Svobodová",
		Phone:     "+420 608 555 111",
		Age:       35,
		City:      "Brno",
	})
	if err != nil {
		return DemoResult{}, fmt.Errorf("demo person: %w", err)
	}
	res.PersonIDs = []int64{jan.ID, eva.ID}

	today := s.today()
	yearAgo := domain.DateOf(today.AddDate(-1, 0, 0))
	nextYear := domain.DateOf(today.AddDate(1, 0, 0))
	home, err := s.policies.CreateFor(ctx, jan.ID, domain.PolicyDraft{
		ProductName: "Home insurance",
		Amount:      domain.Money(2_500_000_00),
		ValidFrom:   yearAgo,
		ValidTo:     nextYear,
	})
	if err != nil {
		return DemoResult{}, fmt.Errorf("demo policy: %w", err)
	}
	car, err := s.policies.CreateFor(ctx, eva.ID, domain.PolicyDraft{
		ProductName: "Car insurance",
		Amount:      domain.Money(450_000_00),
		ValidFrom:   yearAgo,
		ValidTo:     domain.DateOf(today.Add(-24 * time.Hour)),
	})
	if err != nil {
		return DemoResult{}, fmt.Errorf("demo policy: %w", err)
	}
	res.PolicyIDs = []int64{home.ID, car.ID}

	if err := s.policies.AddPerson(ctx, domain.Binding{PolicyID: home.ID, PersonID: eva.ID, Role: domain.RoleInsured}); err != nil {
		return DemoResult{}, fmt.Errorf("demo binding: %w", err)
	}

	claim, err := s.claims.Save(ctx, domain.Claim{
		PolicyID:    &home.ID,
		Date:        domain.DateOf(today.AddDate(0, -2, 0)),
		Description: "Water damage in the kitchen",
		Amount:      domain.Money(38_000_00),
		State:       domain.ClaimResolved,
	})
	if err != nil {
		return DemoResult{}, fmt.Errorf("demo claim: %w", err)
	}
	res.ClaimIDs = []int64{claim.ID}

	s.logger.Info("demo data created",
		zap.Int64("account_id", acct.ID),
		zap.Int("policies", len(res.PolicyIDs)),
	)
	return res, nil
}
