package core

// Totals is the income/expense summary of a ledger.
type Totals struct {
	Income  Money `json:"total_income"`
	Expense Money `json:"total_expense"`
	Balance Money `json:"balance"`
}

// ComputeTotals sums the ledger from scratch. Balance is always exactly
// Income minus Expense.
func ComputeTotals(txs []Transaction) Totals {
	income, expense := ZeroMoney(), ZeroMoney()
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			income = income.Add(tx.Amount)
		case Expense:
			expense = expense.Add(tx.Amount)
		}
	}
	return Totals{
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
	}
}
