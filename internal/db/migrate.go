package db

import (
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	// Порядок важен: таблицы со ссылками идут после родительских
	err := db.AutoMigrate(
		&User{},
		&Order{},
		&Payment{},
		&EmployeePayment{},
		&Transaction{},
		&Notification{},
		&NotificationSend{},
	)
	if err != nil {
		return err
	}

	return tuneDialect(db)
}

func tuneDialect(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite":
		// WAL позволяет читать во время записи; для :memory: pragma игнорируется
		return db.Exec("PRAGMA journal_mode=WAL").Error
	case "mysql":
		// Ledger-выборки по заказу и категории идут вместе
		var count int64
		err := db.Raw(`SELECT COUNT(*) FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = 'transactions' AND index_name = 'idx_transactions_order_category'`).Scan(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return db.Exec("CREATE INDEX idx_transactions_order_category ON transactions (order_id, category)").Error
	}
	return nil
}
