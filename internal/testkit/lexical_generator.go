package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"

	"golmer/domain/table"
)

// LexicalConfig configures the synthetic primed lexical decision generator
type LexicalConfig struct {
	SubjectCount    int     `json:"subject_count"`
	PairCount       int     `json:"pair_count"`
	GrandMean       float64 `json:"grand_mean"`
	SubjectSD       float64 `json:"subject_sd"`
	PrimeSD         float64 `json:"prime_sd"`
	TargetSD        float64 `json:"target_sd"`
	NoiseSD         float64 `json:"noise_sd"`
	PrimeFreqSlope  float64 `json:"prime_freq_slope"`
	TargetFreqSlope float64 `json:"target_freq_slope"`
	SimilaritySlope float64 `json:"similarity_slope"`
	AssocSlope      float64 `json:"assoc_slope"`
	Seed            int64   `json:"seed"`
}

// DefaultLexicalConfig returns a dataset with strong frequency and similarity
// effects and a null association predictor
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		SubjectCount:    16,
		PairCount:       24,
		GrandMean:       520,
		SubjectSD:       30,
		PrimeSD:         18,
		TargetSD:        22,
		NoiseSD:         28,
		PrimeFreqSlope:  -5,
		TargetFreqSlope: -8,
		SimilaritySlope: -25,
		AssocSlope:      0,
		Seed:            42,
	}
}

// LexicalGenerator generates crossed subjects-by-pairs reaction time data
// where every subject responds to every prime-target pair once
type LexicalGenerator struct {
	config LexicalConfig
	rng    *rand.Rand
}

// NewLexicalGenerator creates a new generator from the config seed
func NewLexicalGenerator(config LexicalConfig) *LexicalGenerator {
	return &LexicalGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate produces the full crossed table. The same config always yields the
// same table, so fixtures are reproducible across runs.
func (g *LexicalGenerator) Generate() (*table.Table, error) {
	cfg := g.config
	if cfg.SubjectCount < 2 || cfg.PairCount < 2 {
		return nil, fmt.Errorf("generator needs at least 2 subjects and 2 pairs, got %d and %d",
			cfg.SubjectCount, cfg.PairCount)
	}

	subjEff := make([]float64, cfg.SubjectCount)
	subjLevels := make([]string, cfg.SubjectCount)
	for s := range subjEff {
		subjEff[s] = g.rng.NormFloat64() * cfg.SubjectSD
		subjLevels[s] = fmt.Sprintf("s%02d", s+1)
	}

	primeEff := make([]float64, cfg.PairCount)
	targetEff := make([]float64, cfg.PairCount)
	primeLevels := make([]string, cfg.PairCount)
	targetLevels := make([]string, cfg.PairCount)
	primeFreq := make([]float64, cfg.PairCount)
	targetFreq := make([]float64, cfg.PairCount)
	similarity := make([]float64, cfg.PairCount)
	assoc := make([]float64, cfg.PairCount)
	for j := range primeEff {
		primeEff[j] = g.rng.NormFloat64() * cfg.PrimeSD
		targetEff[j] = g.rng.NormFloat64() * cfg.TargetSD
		primeLevels[j] = fmt.Sprintf("p%02d", j+1)
		targetLevels[j] = fmt.Sprintf("t%02d", j+1)
		primeFreq[j] = 3 + 1.2*g.rng.NormFloat64()
		targetFreq[j] = 3 + 1.2*g.rng.NormFloat64()
		similarity[j] = g.rng.Float64()
		assoc[j] = g.rng.Float64()
	}

	n := cfg.SubjectCount * cfg.PairCount
	rt := make([]float64, 0, n)
	subjCodes := make([]int, 0, n)
	primeCodes := make([]int, 0, n)
	targetCodes := make([]int, 0, n)
	rowPrimeFreq := make([]float64, 0, n)
	rowTargetFreq := make([]float64, 0, n)
	rowSimilarity := make([]float64, 0, n)
	rowAssoc := make([]float64, 0, n)

	for s := 0; s < cfg.SubjectCount; s++ {
		for j := 0; j < cfg.PairCount; j++ {
			v := cfg.GrandMean +
				subjEff[s] + primeEff[j] + targetEff[j] +
				cfg.PrimeFreqSlope*primeFreq[j] +
				cfg.TargetFreqSlope*targetFreq[j] +
				cfg.SimilaritySlope*similarity[j] +
				cfg.AssocSlope*assoc[j] +
				g.rng.NormFloat64()*cfg.NoiseSD
			rt = append(rt, v)
			subjCodes = append(subjCodes, s)
			primeCodes = append(primeCodes, j)
			targetCodes = append(targetCodes, j)
			rowPrimeFreq = append(rowPrimeFreq, primeFreq[j])
			rowTargetFreq = append(rowTargetFreq, targetFreq[j])
			rowSimilarity = append(rowSimilarity, similarity[j])
			rowAssoc = append(rowAssoc, assoc[j])
		}
	}

	return table.New(
		table.MustNewNumericColumn("rt", rt),
		table.MustNewFactorColumn("subject", subjLevels, subjCodes),
		table.MustNewFactorColumn("prime", primeLevels, primeCodes),
		table.MustNewFactorColumn("target", targetLevels, targetCodes),
		table.MustNewNumericColumn("prime_freq", rowPrimeFreq),
		table.MustNewNumericColumn("target_freq", rowTargetFreq),
		table.MustNewNumericColumn("similarity", rowSimilarity),
		table.MustNewNumericColumn("pair_assoc", rowAssoc),
	)
}

// Predictors returns the generated predictor columns in their canonical
// screening order
func Predictors() []string {
	return []string{"prime_freq", "target_freq", "similarity", "pair_assoc"}
}

// WriteCSV writes any table as a CSV file, factor columns as level strings
// and missing cells as empty fields
func WriteCSV(path string, tbl *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	names := tbl.Names()
	if err := w.Write(names); err != nil {
		return err
	}

	record := make([]string, len(names))
	for i := 0; i < tbl.Len(); i++ {
		for c, name := range names {
			col, _ := tbl.Column(name)
			switch typed := col.(type) {
			case *table.NumericColumn:
				v := typed.Value(i)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					record[c] = ""
				} else {
					record[c] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			case *table.FactorColumn:
				if level, ok := typed.Level(typed.Code(i)); ok {
					record[c] = level
				} else {
					record[c] = ""
				}
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
