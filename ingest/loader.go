// Package ingest loads transactions, customer behavior profiles, and
// fraud policies from input files, and consolidates a transaction with
// its profile for evaluation.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/storage"
)

func dataLoadError(source string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrDataLoad, source, err)
}

func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dataLoadError(path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, dataLoadError(path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadTransactions loads transactions from a CSV file keyed by
// transaction_id.
func LoadTransactions(path string) (map[string]core.Transaction, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	transactions := make(map[string]core.Transaction, len(rows))
	for _, row := range rows {
		amount, err := strconv.ParseFloat(row["amount"], 64)
		if err != nil {
			return nil, dataLoadError(path, fmt.Errorf("invalid amount %q: %v", row["amount"], err))
		}

		txn := core.Transaction{
			TransactionID: row["transaction_id"],
			CustomerID:    row["customer_id"],
			Amount:        amount,
			Currency:      row["currency"],
			Country:       row["country"],
			Channel:       row["channel"],
			DeviceID:      row["device_id"],
			Timestamp:     row["timestamp"],
			MerchantID:    row["merchant_id"],
		}
		transactions[txn.TransactionID] = txn
	}
	return transactions, nil
}

func splitList(raw string) []string {
	parts := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// LoadCustomerBehavior loads customer profiles from a CSV file keyed by
// customer_id. Comma-separated usual_countries and usual_devices columns
// are normalized to lists.
func LoadCustomerBehavior(path string) (map[string]core.CustomerBehavior, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	customers := make(map[string]core.CustomerBehavior, len(rows))
	for _, row := range rows {
		avg, err := strconv.ParseFloat(row["usual_amount_avg"], 64)
		if err != nil {
			return nil, dataLoadError(path, fmt.Errorf("invalid usual_amount_avg %q: %v", row["usual_amount_avg"], err))
		}

		customer := core.CustomerBehavior{
			CustomerID:     row["customer_id"],
			UsualAmountAvg: avg,
			UsualHours:     row["usual_hours"],
			UsualCountries: splitList(row["usual_countries"]),
			UsualDevices:   splitList(row["usual_devices"]),
		}
		customers[customer.CustomerID] = customer
	}
	return customers, nil
}

// LoadPolicies loads fraud policies from a JSON file.
func LoadPolicies(path string) ([]core.FraudPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dataLoadError(path, err)
	}

	var policies []core.FraudPolicy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, dataLoadError(path, err)
	}
	return policies, nil
}

// Persist saves loaded transactions and profiles through the store.
func Persist(ctx context.Context, store storage.TransactionStore, transactions map[string]core.Transaction, customers map[string]core.CustomerBehavior) error {
	for _, txn := range transactions {
		if err := store.SaveTransaction(ctx, txn); err != nil {
			return err
		}
	}
	for _, customer := range customers {
		if err := store.SaveCustomerBehavior(ctx, customer); err != nil {
			return err
		}
	}
	return nil
}

// Consolidate joins a stored transaction with its customer profile.
// Deterministic: consolidating the same transaction twice yields an equal
// view.
func Consolidate(ctx context.Context, store storage.TransactionStore, transactionID string) (core.ConsolidatedTransaction, error) {
	txn, err := store.GetTransaction(ctx, transactionID)
	if err != nil {
		return core.ConsolidatedTransaction{}, err
	}

	customer, err := store.GetCustomerBehavior(ctx, txn.CustomerID)
	if err != nil {
		return core.ConsolidatedTransaction{}, err
	}

	return core.Consolidate(txn, customer), nil
}
