package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/domain"
)

// FileSource loads the datasets as files through a Fetcher.
type FileSource struct {
	fetcher Fetcher
	files   domain.DataFilesConfig
	logger  *logrus.Logger
}

// NewFileSource creates a file-backed source.
func NewFileSource(fetcher Fetcher, files domain.DataFilesConfig, logger *logrus.Logger) *FileSource {
	return &FileSource{fetcher: fetcher, files: files, logger: logger}
}

// Describe identifies the underlying storage.
func (s *FileSource) Describe() string {
	return s.fetcher.Describe()
}

// Load fetches and parses every dataset. The first missing, empty or unparseable required
// dataset aborts the load.
func (s *FileSource) Load(ctx context.Context) (*RawDatasets, error) {
	raw := newRawDatasets()

	steps := []struct {
		dataset string
		file    string
		parse   func([]byte) error
	}{
		{DatasetPatients, s.files.Patients, func(b []byte) (err error) { raw.Patients, err = parsePatients(b); return }},
		{DatasetLabs, s.files.Labs, func(b []byte) (err error) { raw.Labs, err = parseLabs(b); return }},
		{DatasetMedications, s.files.Medications, func(b []byte) (err error) { raw.Medications, err = parseMedications(b); return }},
		{DatasetMedicationKnowledge, s.files.MedicationKnowledge, func(b []byte) (err error) { raw.Knowledge, err = parseKnowledge(b); return }},
		{DatasetReferenceRanges, s.files.ReferenceRanges, func(b []byte) (err error) { raw.Ranges, err = parseRanges(b); return }},
		{DatasetBodyMap, s.files.BodyMap, func(b []byte) (err error) { raw.BodyMap, err = parseBodyMap(b); return }},
	}

	for _, step := range steps {
		data, err := s.fetchRequired(ctx, step.dataset, step.file)
		if err != nil {
			return nil, err
		}
		if err := step.parse(data); err != nil {
			return nil, domain.NewDatasetInvalidError(step.dataset, fmt.Sprintf("%s: %v", step.file, err), nil)
		}
		s.logger.WithFields(logrus.Fields{
			"dataset": step.dataset,
			"file":    step.file,
			"bytes":   len(data),
		}).Debug("Dataset fetched")
	}

	graphics := []struct {
		gender domain.GraphicGender
		file   string
	}{
		{domain.GraphicMale, s.files.MaleGraphic},
		{domain.GraphicFemale, s.files.FemaleGraphic},
	}
	for _, g := range graphics {
		if g.file == "" {
			continue
		}
		data, err := s.fetcher.Fetch(ctx, g.file)
		switch {
		case errors.Is(err, ErrObjectNotFound):
			s.logger.WithField("file", g.file).Warn("Anatomy graphic not found, diagram unavailable for this gender")
			continue
		case err != nil:
			return nil, domain.NewDatasetMissingError(DatasetGraphics, err)
		case len(data) == 0:
			s.logger.WithField("file", g.file).Warn("Anatomy graphic is empty, diagram unavailable for this gender")
			continue
		}
		raw.Graphics[g.gender] = string(data)
	}
	if len(raw.Graphics) == 0 {
		return nil, domain.NewDatasetMissingError(DatasetGraphics,
			fmt.Errorf("neither %q nor %q is available", s.files.MaleGraphic, s.files.FemaleGraphic))
	}

	return raw, nil
}

func (s *FileSource) fetchRequired(ctx context.Context, dataset, file string) ([]byte, error) {
	if file == "" {
		return nil, domain.NewDatasetMissingError(dataset, fmt.Errorf("no file configured"))
	}
	data, err := s.fetcher.Fetch(ctx, file)
	if err != nil {
		return nil, domain.NewDatasetMissingError(dataset, err)
	}
	if len(data) == 0 {
		return nil, domain.NewDatasetEmptyError(dataset)
	}
	return data, nil
}
