package entity

// uuid21 documents intent at call sites: identities in this system are
// opaque 128-bit random ids rendered as strings (nanoid-generated, 21
// characters), not database-native UUIDs. Kept as a plain string alias
// rather than a distinct type so it composes with squirrel/pgx scanning
// without custom Valuer/Scanner glue.
type uuid21 = string
