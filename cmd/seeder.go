package cmd

import (
	"context"
	"fmt"

	"github.com/frahmantamala/care-access/internal/auth"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo users for each role",
	Long: `Give one demo user each role from the catalog migration and print a token for each.
The role, permission and module catalog itself is created by the migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		ctx := context.Background()
		deps, err := buildServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
		for _, name := range demoRoles {
			user := demoUser(name)
			if clearData {
				if _, err := deps.Roles.RemoveRole(ctx, user, name, nil); err != nil {
					return fmt.Errorf("clear %s: %w", name, err)
				}
			}
			if err := ensureRole(ctx, deps.Roles, user, name); err != nil {
				return err
			}
			signed, _, err := tokens.GenerateAccessToken(user)
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %s\n  token: %s\n", name, user, signed)
		}
		return nil
	},
}

var demoRoles = []access.RoleName{
	access.RoleSuperAdmin,
	access.RoleFacilityAdmin,
	access.RoleOnboardingTeam,
	access.RoleCaseManager,
	access.RoleRegisteredNurse,
	access.RoleCareProvider,
	access.RoleHealthcareStaff,
}

// demoUser is stable across runs so tokens can be regenerated.
func demoUser(name access.RoleName) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("care-access/demo/"+string(name)))
}

func ensureRole(ctx context.Context, roles *role.Service, user uuid.UUID, name access.RoleName) error {
	held, err := roles.RoleNames(ctx, user)
	if err != nil {
		return err
	}
	if access.HasRole(held, name) {
		return nil
	}
	in := role.AssignInput{}
	if name == access.RoleFacilityAdmin {
		facility := int64(1)
		in.FacilityID = &facility
	}
	if _, err := roles.AssignRole(ctx, user, name, in); err != nil {
		return fmt.Errorf("assign %s: %w", name, err)
	}
	return nil
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "remove demo memberships before seeding")
}
