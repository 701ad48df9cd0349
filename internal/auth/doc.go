// Package auth provides authentication and authorization for assistant-console.
//
// # Authentication
//
// Admin users sign in with username and password (bcrypt hashes stored in
// the admin_users table). A successful login returns an HS256 JWT whose
// "sub" claim is the user ID. Every /api request and gRPC call carries it
// as "Authorization: Bearer <token>".
//
// # Roles
//
// Roles are ordered owner > admin > editor > viewer:
//
//   - viewer: read everything, preview templates
//   - editor: change templates, follow-ups, knowledge, formatting, branding
//   - admin: manage providers, users and the audit log
//   - owner: created by bootstrap; same rights as admin
//
// HTTPAuthMiddleware and UnaryInterceptor populate an AuthContext;
// RequireRoleHTTP gates handlers by role.
package auth
