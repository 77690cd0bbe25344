package logging

import "github.com/sirupsen/logrus"

// BaseFields builds the action + config path fields shared by the CLI entry
// points.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// HookFields carries the per-firing fields hook dispatch logs reuse.
func HookFields(stage, plugin, txnID string) logrus.Fields {
	return logrus.Fields{
		"stage":  stage,
		"plugin": plugin,
		"txn":    txnID,
	}
}

// TxnFields carries the per-transaction fields the host logs reuse.
func TxnFields(txnID, method, host string, status int) logrus.Fields {
	return logrus.Fields{
		"txn":    txnID,
		"method": method,
		"host":   host,
		"status": status,
	}
}
