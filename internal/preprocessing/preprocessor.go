package preprocessing

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/training"
)

const (
	saleModality      = "venda"
	defaultFloodQuota = 21.0
	neighborhoodCol   = 4
)

// Required export columns.
var requiredColumns = []string{
	"type", "modality_name", "rooms", "bathrooms", "size",
	"parking_space", "neighborhood_name", "flood_quota", "price",
}

// Source provides the raw property export.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Preprocessor turns the property export into a scaled train/test split.
type Preprocessor struct {
	source   Source
	testSize float64
	seed     uint64
	logger   *slog.Logger
}

// NewPreprocessor creates a preprocessor. testSize is the fraction of rows held out for testing.
func NewPreprocessor(source Source, testSize float64, seed uint64, logger *slog.Logger) *Preprocessor {
	return &Preprocessor{
		source:   source,
		testSize: testSize,
		seed:     seed,
		logger:   logger,
	}
}

// property is one sale listing reduced to the columns training uses.
type property struct {
	mainType     string
	rooms        float64
	bathrooms    float64
	size         float64
	parkingSpace float64
	neighborhood string
	security     float64
	price        float64
}

// Prepare downloads the export and builds the dataset and its fitted encoders.
func (p *Preprocessor) Prepare(ctx context.Context) (*training.Dataset, training.Encoders, error) {
	raw, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, training.Encoders{}, err
	}

	properties, skipped, err := parseProperties(raw)
	if err != nil {
		return nil, training.Encoders{}, err
	}

	p.logger.Info("Parsed property export",
		slog.Int("sale_rows", len(properties)),
		slog.Int("skipped_rows", skipped),
		slog.Any("types", countTypes(properties)),
	)

	return p.build(properties)
}

func (p *Preprocessor) build(properties []property) (*training.Dataset, training.Encoders, error) {
	if len(properties) < 2 {
		return nil, training.Encoders{}, fmt.Errorf("%w: %d sale rows", domain.ErrEmptyDataset, len(properties))
	}

	names := make([]string, len(properties))
	for i, prop := range properties {
		names[i] = prop.neighborhood
	}
	labels := FitLabelEncoder(names)
	oneHot := &OneHotEncoder{Column: neighborhoodCol, Categories: len(labels.Classes)}

	features := make([][]float64, len(properties))
	targets := make([][]float64, len(properties))
	for i, prop := range properties {
		label, err := labels.Transform(prop.neighborhood)
		if err != nil {
			return nil, training.Encoders{}, err
		}
		row := []float64{prop.rooms, prop.bathrooms, prop.size, prop.parkingSpace, float64(label), prop.security}
		if features[i], err = oneHot.Transform(row); err != nil {
			return nil, training.Encoders{}, err
		}
		targets[i] = []float64{prop.price}
	}

	xScaler := FitMinMaxScaler(features)
	yScaler := FitMinMaxScaler(targets)

	scaledX := make([][]float64, len(features))
	scaledY := make([]float64, len(targets))
	for i := range features {
		scaledX[i] = xScaler.Transform(features[i])
		scaledY[i] = yScaler.Transform(targets[i])[0]
	}

	dataset := p.split(scaledX, scaledY)

	encoders, err := encode(labels, oneHot, xScaler, yScaler)
	if err != nil {
		return nil, training.Encoders{}, err
	}

	p.logger.Info("Dataset prepared",
		slog.Int("train_rows", len(dataset.XTrain)),
		slog.Int("test_rows", len(dataset.XTest)),
		slog.Int("features", len(scaledX[0])),
		slog.Int("neighborhoods", len(labels.Classes)),
	)
	return dataset, encoders, nil
}

// split shuffles rows deterministically and holds out ceil(testSize*n) of them, at least one on each side.
func (p *Preprocessor) split(x [][]float64, y []float64) *training.Dataset {
	n := len(x)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(p.seed, p.seed))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	testRows := int(math.Ceil(p.testSize * float64(n)))
	testRows = min(max(testRows, 1), n-1)

	dataset := &training.Dataset{}
	for rank, idx := range order {
		if rank < testRows {
			dataset.XTest = append(dataset.XTest, x[idx])
			dataset.YTest = append(dataset.YTest, y[idx])
		} else {
			dataset.XTrain = append(dataset.XTrain, x[idx])
			dataset.YTrain = append(dataset.YTrain, y[idx])
		}
	}
	return dataset
}

func encode(labels *LabelEncoder, oneHot *OneHotEncoder, xScaler, yScaler *MinMaxScaler) (training.Encoders, error) {
	var encoders training.Encoders
	var err error

	targets := []struct {
		dest *[]byte
		v    any
	}{
		{&encoders.Neighborhood, labels},
		{&encoders.OneHot, oneHot},
		{&encoders.XMinMax, xScaler},
		{&encoders.YMinMax, yScaler},
	}
	for _, t := range targets {
		if *t.dest, err = json.Marshal(t.v); err != nil {
			return training.Encoders{}, fmt.Errorf("failed to serialize encoder: %w", err)
		}
	}
	return encoders, nil
}

// parseProperties reads the semicolon-delimited export, quoted with '|', and
// keeps the sale listings. Rows with unparsable numbers are skipped and counted.
func parseProperties(raw []byte) ([]property, int, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.ReplaceAll(raw, []byte("|"), []byte(`"`))))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: export is empty", domain.ErrEmptyDataset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read export header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, 0, fmt.Errorf("export is missing column %q", col)
		}
	}

	var properties []property
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read export: %w", err)
		}

		field := func(col string) string {
			i := index[col]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if field("modality_name") != saleModality {
			continue
		}

		prop, ok := parseProperty(field)
		if !ok {
			skipped++
			continue
		}
		properties = append(properties, prop)
	}

	return properties, skipped, nil
}

func parseProperty(field func(string) string) (property, bool) {
	numbers := make(map[string]float64, 5)
	for _, col := range []string{"rooms", "bathrooms", "size", "parking_space", "price"} {
		v, err := strconv.ParseFloat(field(col), 64)
		if err != nil || math.IsNaN(v) {
			return property{}, false
		}
		numbers[col] = v
	}

	neighborhood := field("neighborhood_name")
	if neighborhood == "" {
		return property{}, false
	}

	floodQuota := defaultFloodQuota
	if raw := field("flood_quota"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return property{}, false
		}
		if !math.IsNaN(v) {
			floodQuota = v
		}
	}

	return property{
		mainType:     NormalizeType(field("type")),
		rooms:        numbers["rooms"],
		bathrooms:    numbers["bathrooms"],
		size:         numbers["size"],
		parkingSpace: numbers["parking_space"],
		neighborhood: neighborhood,
		security:     SecurityClass(floodQuota),
		price:        numbers["price"] / 1000,
	}, true
}

// NormalizeType folds listing types into their main category.
func NormalizeType(t string) string {
	switch t {
	case "penthouse", "flat", "loft":
		return "apartamento"
	case "sobrado", "geminada", "condominium", "kitnet":
		return "casa"
	default:
		return t
	}
}

// SecurityClass buckets a flood quota into classes 1 to 4.
// Values falling in the gaps between bands land in class 4.
func SecurityClass(floodQuota float64) float64 {
	switch {
	case floodQuota < 8.13:
		return 1
	case floodQuota > 8.14 && floodQuota < 9.15:
		return 2
	case floodQuota > 9.16 && floodQuota < 12.6:
		return 3
	default:
		return 4
	}
}

func countTypes(properties []property) map[string]int {
	counts := make(map[string]int)
	for _, p := range properties {
		counts[p.mainType]++
	}
	return counts
}
