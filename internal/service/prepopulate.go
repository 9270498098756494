package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/structure"
)

// ErrPrepopulation indicates the startup population of the structure
// tables failed.
var ErrPrepopulation = errors.New("prepopulation error")

// PrepopulateOptions controls the startup population of the structure
// tables.
type PrepopulateOptions struct {
	// ViaFile loads the structure from FilePath instead of Structure.
	ViaFile  bool
	FilePath string

	// Structure is the inline structure to persist when ViaFile is
	// false.
	Structure *structure.CompleteStructure

	// OverwriteExisting deletes all existing structure rows before the
	// update, provided the tables are not already empty.
	OverwriteExisting bool
}

// Prepopulate populates the structure tables at startup. With
// OverwriteExisting set, non-empty tables are wiped first; otherwise the
// document is merged into the existing structure by external key.
func (s *Service) Prepopulate(ctx context.Context, opts PrepopulateOptions) error {
	if opts.OverwriteExisting {
		empty, err := s.TablesEmpty(ctx)
		if err != nil {
			return fmt.Errorf("%w: checking structure tables: %v", ErrPrepopulation, err)
		}
		if !empty {
			s.logger.Info("overwriting existing structure before prepopulation")
			if err := s.DeleteStructure(ctx); err != nil {
				return fmt.Errorf("%w: deleting existing structure: %v", ErrPrepopulation, err)
			}
		}
	}

	cs := opts.Structure
	if opts.ViaFile {
		s.logger.Info("loading structure from file", zap.String("path", opts.FilePath))
		loaded, err := LoadFromJSONFile(opts.FilePath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrepopulation, err)
		}
		cs = loaded
	}
	if cs == nil {
		return fmt.Errorf("%w: no structure provided", ErrPrepopulation)
	}

	if err := s.UpdateStructure(ctx, cs); err != nil {
		return fmt.Errorf("%w: %v", ErrPrepopulation, err)
	}
	return nil
}
