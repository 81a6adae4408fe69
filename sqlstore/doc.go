// Package sqlstore implements github.com/relaycore/outbox's Persistor and
// TransactionManager against database/sql, supporting MySQL 5/8 and
// PostgreSQL 9+ through the Dialect table in dialect.go rather than
// separate packages per driver.
//
// A typical wiring:
//
//	persistor, err := sqlstore.New(db, sqlstore.WithDialect(sqlstore.Postgres9))
//	tm := sqlstore.NewTxManager(db, nil, logger)
//	ob, err := outbox.New(
//		outbox.WithTransactionManager[*sql.Tx](tm),
//		outbox.WithPersistor[*sql.Tx](persistor),
//		outbox.WithInstantiator[*sql.Tx](instantiator),
//	)
package sqlstore
