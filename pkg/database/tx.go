package database

import "github.com/jackc/pgx/v5"

// PgxTx is pgx.Tx, aliased so pkg/devicecatalog and pkg/convstore don't
// have to import pgx directly just for the transaction-callback signature.
type PgxTx = pgx.Tx

// pgxTx is the package-local name used in client.go's WithTx signature.
type pgxTx = pgx.Tx
