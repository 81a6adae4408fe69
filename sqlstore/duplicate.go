package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const mysqlDuplicateEntryErrno = 1062

// postgresUniqueViolationCode is the SQLSTATE for unique_violation.
const postgresUniqueViolationCode = "23505"

func isMySQLDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError

	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntryErrno
}

func isPostgresDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolationCode
}
