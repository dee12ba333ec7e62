package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Inspect and change a user's access",
	Long:  `Resolve permissions, modules and routes for a user the same way the API does.`,
}

var accessFacility int64

var accessCheckCmd = &cobra.Command{
	Use:   "check [user-id] [permission]",
	Short: "Check a single permission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(args[0], func(ctx context.Context, deps *Services, user uuid.UUID) error {
			var facility *int64
			if accessFacility > 0 {
				facility = &accessFacility
			}
			allowed := deps.Permissions.HasPermission(ctx, user, args[1], facility)
			return printJSON(map[string]interface{}{"permission": args[1], "facility_id": facility, "allowed": allowed})
		})
	},
}

var accessShowCmd = &cobra.Command{
	Use:   "show [user-id]",
	Short: "Show roles, effective permissions and modules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(args[0], func(ctx context.Context, deps *Services, user uuid.UUID) error {
			roles, err := deps.Roles.RoleNames(ctx, user)
			if err != nil {
				return err
			}
			perms, err := deps.Permissions.EffectivePermissions(ctx, user)
			if err != nil {
				return err
			}
			modules, err := deps.Modules.EffectiveModules(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"roles": roles, "permissions": perms, "modules": modules})
		})
	},
}

var accessRouteCmd = &cobra.Command{
	Use:   "route [user-id]",
	Short: "Compute where the user would land after login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(args[0], func(ctx context.Context, deps *Services, user uuid.UUID) error {
			prefs, err := deps.Preferences.Load(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"decision": deps.Engine.BestRoute(ctx, user), "preferences": prefs})
		})
	},
}

var accessAssignRoleCmd = &cobra.Command{
	Use:   "assign-role [user-id] [role]",
	Short: "Add the user to a role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := access.ParseRoleName(args[1])
		if err != nil {
			return err
		}
		return withUser(args[0], func(ctx context.Context, deps *Services, user uuid.UUID) error {
			in := role.AssignInput{}
			if accessFacility > 0 {
				in.FacilityID = &accessFacility
			}
			membership, err := deps.Roles.AssignRole(ctx, user, name, in)
			if err != nil {
				return err
			}
			return printJSON(membership)
		})
	},
}

func withUser(raw string, fn func(ctx context.Context, deps *Services, user uuid.UUID) error) error {
	user, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", raw, err)
	}
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
	return fn(ctx, deps, user)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	accessCheckCmd.Flags().Int64Var(&accessFacility, "facility", 0, "facility id to check against")
	accessAssignRoleCmd.Flags().Int64Var(&accessFacility, "facility", 0, "limit the membership to one facility")

	accessCmd.AddCommand(accessCheckCmd)
	accessCmd.AddCommand(accessShowCmd)
	accessCmd.AddCommand(accessRouteCmd)
	accessCmd.AddCommand(accessAssignRoleCmd)
}
