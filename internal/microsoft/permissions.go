package microsoft

import "time"

// GraphResourceAppID is the application ID of Microsoft Graph.
const GraphResourceAppID = "00000003-0000-0000-c000-000000000000"

// PrerequisitePermission must be granted by hand before the backend can
// configure anything else on the app.
const PrerequisitePermission = "Application.ReadWrite.All"

// SecretExpiry is the end date the backend gives rotated client secrets.
var SecretExpiry = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)

// Tier groups permissions by how much of the console depends on them.
type Tier string

const (
	// TierCore permissions are needed by every directory page.
	TierCore Tier = "core"
	// TierAdvanced permissions enable roles, domains and secret management.
	TierAdvanced Tier = "advanced"
	// TierOptional permissions only back the SharePoint Online check.
	TierOptional Tier = "optional"
)

// Permission is a Graph application permission (app role).
type Permission struct {
	Name string
	ID   string
	Tier Tier
}

// RequiredPermissions lists the application permissions configured during
// bootstrap, in the order the backend applies them.
var RequiredPermissions = []Permission{
	{Name: "User.ReadWrite.All", ID: "741f803b-c850-494e-b5df-cde7c675a1ca", Tier: TierCore},
	{Name: "Directory.ReadWrite.All", ID: "19dbc75e-c2e2-444c-a770-ec69d8559fc7", Tier: TierCore},
	{Name: "Organization.Read.All", ID: "498476ce-e0fe-48b0-b801-37ba7e2685c6", Tier: TierCore},
	{Name: "Reports.Read.All", ID: "230c1aed-a721-4c5d-9cb4-a90514e508ef", Tier: TierCore},
	{Name: "RoleManagement.ReadWrite.Directory", ID: "9e3f62cf-ca93-4989-b6ce-bf83c28f9fe8", Tier: TierAdvanced},
	{Name: "Domain.ReadWrite.All", ID: "7e05723c-0bb0-42da-be95-ae9f08a6e53c", Tier: TierAdvanced},
	{Name: PrerequisitePermission, ID: "1bfefb4e-e0b5-418b-a88f-73c46d2cc8e9", Tier: TierAdvanced},
	{Name: "Sites.FullControl.All", ID: "a82116e5-55eb-4c41-a434-62fe8a61c773", Tier: TierOptional},
}

// PermissionNames returns the names of RequiredPermissions.
func PermissionNames() []string {
	names := make([]string, len(RequiredPermissions))
	for i, p := range RequiredPermissions {
		names[i] = p.Name
	}
	return names
}

// LookupPermission finds a required permission by name.
func LookupPermission(name string) (Permission, bool) {
	for _, p := range RequiredPermissions {
		if p.Name == name {
			return p, true
		}
	}
	return Permission{}, false
}
