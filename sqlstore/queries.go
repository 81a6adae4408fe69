package sqlstore

import "fmt"

const entryColumns = "id, unique_request_id, invocation, next_attempt_time, attempts, blocklisted, processed, version"

type queries struct {
	insert        string
	selectBatch   string
	lock          string
	update        string
	del           string
	whitelist     string
	deleteExpired string
}

func newQueries(table string, d Dialect) queries {
	ph := placeholders(d, 8)

	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
		table, entryColumns, ph[0], ph[1], ph[2], ph[3], ph[4], ph[5], ph[6], ph[7],
	)

	lockSuffix := "FOR UPDATE"
	if d.SupportsSkipLock {
		lockSuffix = "FOR UPDATE SKIP LOCKED"
	}

	selectBatch := fmt.Sprintf(
		"SELECT %s FROM %s WHERE blocklisted = false AND processed = false AND next_attempt_time < %s "+
			"ORDER BY next_attempt_time ASC LIMIT %s %s",
		entryColumns, table, placeholders(d, 2)[0], placeholders(d, 2)[1], lockSuffix,
	)

	lockPH := placeholders(d, 2)
	lock := fmt.Sprintf(
		"SELECT version FROM %s WHERE id = %s AND version = %s %s",
		table, lockPH[0], lockPH[1], lockSuffix,
	)

	updatePH := placeholders(d, 8)
	update := fmt.Sprintf(
		"UPDATE %s SET unique_request_id = %s, invocation = %s, next_attempt_time = %s, attempts = %s, "+
			"blocklisted = %s, processed = %s, version = version + 1 WHERE id = %s AND version = %s",
		table, updatePH[0], updatePH[1], updatePH[2], updatePH[3], updatePH[4], updatePH[5], updatePH[6], updatePH[7],
	)

	delPH := placeholders(d, 2)
	del := fmt.Sprintf("DELETE FROM %s WHERE id = %s AND version = %s", table, delPH[0], delPH[1])

	whitelistPH := placeholders(d, 1)
	whitelist := fmt.Sprintf(
		"UPDATE %s SET blocklisted = false, attempts = 0, version = version + 1 "+
			"WHERE id = %s AND blocklisted = true AND processed = false",
		table, whitelistPH[0],
	)

	deleteExpired := fmt.Sprintf(d.DeleteExpired, table)

	return queries{
		insert:        insert,
		selectBatch:   selectBatch,
		lock:          lock,
		update:        update,
		del:           del,
		whitelist:     whitelist,
		deleteExpired: deleteExpired,
	}
}

func placeholders(d Dialect, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = d.Placeholder(i + 1)
	}

	return out
}
