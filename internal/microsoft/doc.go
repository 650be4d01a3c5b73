// Package microsoft holds the Microsoft identity platform and Graph facts the
// console relies on without talking to Microsoft directly.
//
// This package provides:
//   - The Graph application permissions the backend configures on a tenant's app
//   - Admin-consent URL construction and validation
//   - Client-side pacing for fan-out over many tenants
//
// # Permission Bootstrap
//
// Configuring permissions is two-phase:
//   - Phase 1 (manual): the tenant's service principal must already hold
//     Application.ReadWrite.All with admin consent, granted in the Azure portal.
//   - Phase 2: the backend adds the remaining permissions to the app and returns
//     an admin-consent URL of the form
//     https://login.microsoftonline.com/{tenant}/adminconsent?client_id={app}
//
// A Global Administrator has to open the URL. Nothing in this system can
// observe when that happens, so the client never polls for it.
//
// # Rate Limits
//
// Microsoft Graph allows approximately 10,000 requests per 10 minutes per app.
// Every backend check fans out to Graph, so sweeps over many tenants are paced
// client-side.
package microsoft
