// Package union holds the authentication, role and approval core of the
// Union gig marketplace.
//
// The package keeps a process wide, injectable AuthState that combines
// three caches behind a session generation counter:
//
//   - SessionStore: who is signed in, backed by an IdentityProvider.
//   - RoleResolver: the role of the signed in user, read from a RoleStore.
//   - ApprovalGate: the approval status of worker profiles, read from a
//     WorkerStore and kept fresh through an ApprovalFeed.
//
// Every change of those inputs is folded into a Snapshot and handed to
// Decide, a pure function that returns the navigation Decision for the
// snapshot. Route applies a decision to a requested path.
//
// Results of role and approval lookups started for an older session
// generation are discarded, so a lookup that lands after a sign out never
// leaks data into the cleared state.
//
// Persistence, realtime delivery, identity providers and the HTTP surface
// live in the repository, realtime, provider and web packages.
package union
