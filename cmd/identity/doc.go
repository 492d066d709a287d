// Package identity defines the campusmart account model.
//
// It holds the User aggregate, its sanitized public projection, role
// capabilities, identifier normalization, and typed identity errors. Storage
// lives with the session store, which owns both users and their refresh-token
// collections.
package identity
