// Пакет wal — журнал загрузок файлов каталога.
// Каждая загрузка открывает запись pending до начала записи байтов
// и закрывает её как committed или rolled_back. Записи, оставшиеся
// pending после аварийной остановки, указывают на временные файлы,
// которые нужно удалить при старте.
// Каждая запись — отдельный файл {tx_id}.wal.json в CATALOG_WAL_DIR.
package wal

import (
	"time"
)

// OperationType — тип журналируемой операции.
type OperationType string

const (
	// OpUploadCreate — приём загружаемого файла в дерево наборов
	OpUploadCreate OperationType = "upload_create"
)

// TransactionStatus — статус записи журнала.
type TransactionStatus string

const (
	// StatusPending — загрузка начата, файл ещё не опубликован
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — файл опубликован под итоговым именем
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — загрузка отменена, временный файл удалён
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись журнала.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	Operation     OperationType     `json:"operation"`
	Status        TransactionStatus `json:"status"`

	// Target — итоговый путь файла относительно корня загрузок
	Target string `json:"target"`

	// TempPath — абсолютный путь временного файла, в который пишутся байты
	TempPath string `json:"temp_path"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func walFileName(txID string) string {
	return txID + ".wal.json"
}
