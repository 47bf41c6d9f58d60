package repository

import (
	"urbanvision/internal/dto"
	"urbanvision/internal/model"
)

// RunRepository defines the interface for archived run operations.
type RunRepository interface {
	// Create operations
	Insert(run *model.Run) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Run, error)
	GetByFilename(filename string) (*model.Run, error)
	GetAll(filter *dto.RunFilters) ([]model.Run, error)
	GetTotalCount(filter *dto.RunFilters) (int, error)
	GetDirectorySize() (int64, error)

	// Delete operations
	Delete(id int64) error
	DeleteByFilename(filename string) error
	DeleteAll() error
}

// DetectionRepository defines the interface for persisted detection operations.
type DetectionRepository interface {
	// Create operations
	Insert(det *model.Detection) (int64, error)
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetByRunID(runID int64) ([]model.Detection, error)
	GetObjectNamesByRunID(runID int64) ([]string, error)
	GetAllObjectNames() ([]string, error)

	// Delete operations
	DeleteByRunID(runID int64) error
}
