// Package extraction sequences the whole pipeline per document: strategy
// selection, page targeting, grouped dual-model passes with consensus
// and judge arbitration, the retrieval fallback for oversized documents,
// and progressive combination of passes into one consolidated answer
// set. Extract always returns a complete field-to-answer map; confidence
// carries the quality signal instead of error codes.
package extraction

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
	"github.com/alannreyes/uwia-sub001/internal/usecase/combine"
	"github.com/alannreyes/uwia-sub001/internal/usecase/consensus"
	"github.com/alannreyes/uwia-sub001/internal/usecase/fieldgroup"
	"github.com/alannreyes/uwia-sub001/internal/usecase/judge"
)

const (
	// totalFailureConfidence marks a field every page and pass failed on.
	totalFailureConfidence = 0.1

	// subsetSize is the field-subset width of the chunked third pass.
	subsetSize = 3

	defaultAgreementThreshold = 0.8
	defaultNotFoundThreshold  = 0.4
	defaultEarlyExitThreshold = 0.9
	defaultBatchSize          = 2
	defaultBatchDelay         = time.Second
)

// Params tunes the orchestrator thresholds.
type Params struct {
	BatchSize          int
	BatchDelay         time.Duration
	AgreementThreshold float64
	NotFoundThreshold  float64
	EarlyExitThreshold float64
}

func (p Params) withDefaults() Params {
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.BatchDelay <= 0 {
		p.BatchDelay = defaultBatchDelay
	}
	if p.AgreementThreshold <= 0 {
		p.AgreementThreshold = defaultAgreementThreshold
	}
	if p.NotFoundThreshold <= 0 {
		p.NotFoundThreshold = defaultNotFoundThreshold
	}
	if p.EarlyExitThreshold <= 0 {
		p.EarlyExitThreshold = defaultEarlyExitThreshold
	}
	return p
}

// Service is the extraction orchestrator.
type Service struct {
	primary   domain.Model
	secondary domain.Model
	judge     Arbitrator
	selector  Selector
	targeter  Targeter
	retriever Retriever
	combiner  *combine.Combiner
	limiter   *rate.Limiter
	params    Params
	logger    *zap.Logger
}

// New wires the orchestrator. retriever may be nil when the deployment
// has no redis; oversized documents then degrade to page-split.
func New(primary, secondary domain.Model, arb Arbitrator, sel Selector, tg Targeter, retriever Retriever, params Params, log *zap.Logger) *Service {
	p := params.withDefaults()
	return &Service{
		primary:   primary,
		secondary: secondary,
		judge:     arb,
		selector:  sel,
		targeter:  tg,
		retriever: retriever,
		combiner:  combine.New(),
		limiter:   rate.NewLimiter(rate.Every(p.BatchDelay), 1),
		params:    p,
		logger:    log,
	}
}

// WithCombiner replaces the default combiner, for tuned margins.
func (s *Service) WithCombiner(c *combine.Combiner) *Service {
	s.combiner = c
	return s
}

// WithLimiter replaces the batch pacing limiter. Tests use an unlimited one.
func (s *Service) WithLimiter(l *rate.Limiter) *Service {
	s.limiter = l
	return s
}

// Request is one extraction run over one document.
type Request struct {
	Document domain.Document
	Fields   []domain.FieldRequest
}

// Result is the consolidated outcome.
type Result struct {
	Answers      map[string]domain.FieldAnswer
	Strategy     domain.Strategy
	SessionID    string
	Confidence   float64
	NotFoundRate float64
}

// Extract runs the pipeline. The returned map always contains every
// requested field; total failure resolves to NOT_FOUND at minimal
// confidence rather than an error.
func (s *Service) Extract(ctx context.Context, req Request) Result {
	plan := s.selector.Select(req.Document)
	metrics.StrategySelectedTotal.WithLabelValues(string(plan.Strategy)).Inc()

	ctx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	s.logger.Info("extraction started",
		zap.String("file", req.Document.FileName),
		zap.String("strategy", string(plan.Strategy)),
		zap.Int("fields", len(req.Fields)),
		zap.Int("pages", req.Document.PageCount()),
		zap.Duration("timeout", plan.Timeout))

	run := &runState{
		plan:         plan,
		fields:       req.Fields,
		document:     req.Document,
		groups:       make([]fieldgroup.Group, len(req.Fields)),
		pages:        make([][]int, len(req.Fields)),
		fieldMethods: make(map[string][]string),
	}
	for i, f := range req.Fields {
		run.groups[i] = fieldgroup.Classify(f, req.Document.PageCount())
	}
	s.resolvePages(ctx, run)

	if plan.Strategy == domain.StrategyRetrieval && s.retriever != nil {
		s.ingest(ctx, run)
	}

	var passes []domain.ExtractionPass
	first := s.runPass(ctx, run, nil, false)
	passes = append(passes, first)

	if domain.NotFoundRate(first.Values) > s.params.NotFoundThreshold {
		// Forced reanalysis: the document gets a second look with
		// strengthened prompts before the answer set is accepted.
		missing := missingIndexes(first.Values)
		second := s.runPass(ctx, run, missing, true)
		passes = append(passes, second)

		if len(run.fields) > subsetSize && run.plan.Strategy != domain.StrategyRetrieval {
			passes = append(passes, s.runSubsetPass(ctx, run, missingIndexes(second.Values)))
		}
	}

	combined := s.combiner.Combine(req.Fields, nil, passes)

	answers := make(map[string]domain.FieldAnswer, len(req.Fields))
	for i, f := range req.Fields {
		conf := combined.Confidences[i]
		value := combined.Values[i]
		if value == domain.NotFound && conf < totalFailureConfidence {
			conf = totalFailureConfidence
		}
		method := combined.Sources[i]
		if fm, ok := run.fieldMethods[method]; ok && i < len(fm) && fm[i] != "" {
			method = fm[i]
		}
		answers[f.FieldID] = domain.FieldAnswer{
			FieldID:    f.FieldID,
			Value:      value,
			Confidence: conf,
			Method:     method,
			Pages:      run.pages[i],
		}
	}

	nfRate := domain.NotFoundRate(combined.Values)
	s.logger.Info("extraction finished",
		zap.String("file", req.Document.FileName),
		zap.Float64("confidence", combined.Confidence),
		zap.Float64("not_found_rate", nfRate),
		zap.Int("passes", len(passes)))

	return Result{
		Answers:      answers,
		Strategy:     plan.Strategy,
		SessionID:    run.sessionID,
		Confidence:   combined.Confidence,
		NotFoundRate: nfRate,
	}
}

// runState carries the per-run working set between passes.
type runState struct {
	plan      domain.StrategyPlan
	fields    []domain.FieldRequest
	document  domain.Document
	groups    []fieldgroup.Group
	pages     [][]int // candidate pages per field
	sessionID string
	// fieldMethods records the per-field resolution method of each pass
	// (judge arbitration, retrieval, fallback) keyed by pass method, so
	// the final answer can report how its winning value was produced.
	fieldMethods map[string][]string
}

type resultPair struct {
	primary   domain.ModelResult
	secondary domain.ModelResult
}

// resolvePages fills the per-field candidate page lists. Direct and
// retrieval strategies do not target: direct reads the whole document,
// retrieval ranks chunks instead of pages.
func (s *Service) resolvePages(ctx context.Context, run *runState) {
	switch run.plan.Strategy {
	case domain.StrategyTargetedVision, domain.StrategyPageSplit:
		mappings := s.targeter.MapFields(ctx, run.document, run.fields)
		byField := make(map[string][]int, len(mappings))
		for _, m := range mappings {
			byField[m.FieldID] = m.TargetPages
		}
		for i, f := range run.fields {
			run.pages[i] = byField[f.FieldID]
		}
	default:
		for i := range run.fields {
			run.pages[i] = nil
		}
	}
}

func (s *Service) ingest(ctx context.Context, run *runState) {
	sess, err := s.retriever.Ingest(ctx, run.document, run.plan.ChunkPages)
	if err != nil {
		s.logger.Warn("retrieval ingestion failed, degrading to page-split",
			zap.String("file", run.document.FileName),
			zap.Error(err))
		run.plan.Strategy = domain.StrategyPageSplit
		metrics.StrategySelectedTotal.WithLabelValues(string(domain.StrategyPageSplit)).Inc()
		s.resolvePages(ctx, run)
		return
	}
	run.sessionID = sess.ID
}

// runPass extracts every field once (or only the given subset) and
// returns the pass values in field order. only may be nil for all
// fields; indexes outside it resolve to NOT_FOUND in the pass output so
// combination leaves them untouched.
func (s *Service) runPass(ctx context.Context, run *runState, only []int, enhanced bool) domain.ExtractionPass {
	values := make([]string, len(run.fields))
	confs := make([]float64, len(run.fields))
	methods := make([]string, len(run.fields))
	for i := range values {
		values[i] = domain.NotFound
	}

	wanted := make(map[int]bool, len(run.fields))
	if only == nil {
		for i := range run.fields {
			wanted[i] = true
		}
	} else {
		for _, i := range only {
			wanted[i] = true
		}
	}

	// Group by processing group so concurrency budgets apply per group.
	byGroup := make(map[fieldgroup.Group][]int)
	for i := range run.fields {
		if wanted[i] {
			g := run.groups[i]
			byGroup[g] = append(byGroup[g], i)
		}
	}

	for group, indexes := range byGroup {
		width := fieldgroup.Concurrency(group)
		if s.params.BatchSize < width {
			width = s.params.BatchSize
		}
		for start := 0; start < len(indexes); start += width {
			end := start + width
			if end > len(indexes) {
				end = len(indexes)
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return domain.ExtractionPass{Method: passMethod(enhanced), Priority: passPriority(enhanced), Values: values}
			}

			var wg sync.WaitGroup
			for _, idx := range indexes[start:end] {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					result := s.extractField(ctx, run, idx, enhanced)
					values[idx] = result.Response
					confs[idx] = result.Confidence
					methods[idx] = result.Method
				}(idx)
			}
			wg.Wait()
		}
	}

	run.fieldMethods[passMethod(enhanced)] = methods
	return domain.ExtractionPass{
		Method:     passMethod(enhanced),
		Priority:   passPriority(enhanced),
		Values:     values,
		Confidence: meanPositive(confs),
	}
}

func passMethod(enhanced bool) string {
	if enhanced {
		return "enhanced"
	}
	return "dual-model"
}

func passPriority(enhanced bool) int {
	if enhanced {
		return 2
	}
	return 1
}

// runSubsetPass re-asks remaining missing fields in small consolidated
// prompts against the whole document text. This is the cheapest way to
// catch values that per-page extraction scattered across pages.
func (s *Service) runSubsetPass(ctx context.Context, run *runState, missing []int) domain.ExtractionPass {
	values := make([]string, len(run.fields))
	for i := range values {
		values[i] = domain.NotFound
	}
	pass := domain.ExtractionPass{Method: "chunked", Priority: 3, Values: values}

	text := run.document.Text()
	if text == "" || len(missing) == 0 {
		return pass
	}

	var confSum float64
	var confN int
	for start := 0; start < len(missing); start += subsetSize {
		end := start + subsetSize
		if end > len(missing) {
			end = len(missing)
		}
		subset := missing[start:end]

		fields := make([]domain.FieldRequest, 0, len(subset))
		for _, idx := range subset {
			fields = append(fields, run.fields[idx])
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return pass
		}
		out, err := s.primary.Extract(ctx, domain.ModelInput{
			Text:         text,
			Prompt:       consolidatedPrompt(fields, true),
			ExpectedType: domain.TypeText,
			FieldID:      "consolidated_subset",
		})
		if err != nil {
			s.logger.Warn("subset pass call failed",
				zap.Int("subset_start", start),
				zap.Error(err))
			continue
		}

		split := domain.SplitConsolidated(out.Response, len(subset))
		for i, idx := range subset {
			values[idx] = split[i]
		}
		confSum += out.Confidence
		confN++
	}

	if confN > 0 {
		pass.Confidence = confSum / float64(confN)
	}
	return pass
}

// extractField resolves one field for one pass: retrieval delegation,
// or the dual-model page scan with consensus and judge arbitration.
func (s *Service) extractField(ctx context.Context, run *runState, idx int, enhanced bool) domain.ModelResult {
	field := run.fields[idx]

	if run.plan.Strategy == domain.StrategyRetrieval && run.sessionID != "" {
		return s.retrievalField(ctx, run, idx)
	}

	prompt := fieldPrompt(field, enhanced)
	best := domain.ModelResult{FieldID: field.FieldID, Response: domain.NotFound, Confidence: 0}

	for _, input := range s.fieldInputs(run, idx, prompt) {
		pair, ok := s.dualCall(ctx, input)
		if !ok {
			continue
		}

		decision := consensus.Score(pair.primary.Response, pair.secondary.Response, field.ExpectedType)
		metrics.ConsensusAgreement.Observe(decision.Agreement)

		result := domain.ModelResult{
			FieldID:    field.FieldID,
			Page:       input.Page,
			Response:   decision.FinalAnswer,
			Confidence: consensus.CombinedConfidence(pair.primary.Confidence, pair.secondary.Confidence, decision.Agreement),
			ModelID:    pair.primary.ModelID,
			Method:     passMethod(enhanced),
		}

		if pair.primary.Response == "" || pair.secondary.Response == "" {
			// One side failed outright; the survivor's confidence stands
			// alone and there is nothing for a judge to compare.
			result.Confidence = pair.primary.Confidence + pair.secondary.Confidence
		} else if decision.Agreement < s.params.AgreementThreshold {
			// The reanalysis pass only runs past the NOT_FOUND-rate
			// threshold; label its arbitrations accordingly.
			trigger := judge.TriggerLowAgreement
			if enhanced {
				trigger = judge.TriggerNotFoundRate
			}
			arbitrated := s.judge.Arbitrate(ctx, field, pair.primary, pair.secondary, input.Text, trigger)
			result.Response = arbitrated.Response
			result.Confidence = arbitrated.Confidence
			result.Method = arbitrated.Method
		}

		if result.Confidence > best.Confidence && result.Response != "" {
			best = result
		}

		if s.earlyExit(run.groups[idx], field, best) {
			break
		}
	}

	if best.Response == "" {
		best.Response = domain.NotFound
	}
	return best
}

// earlyExit short-circuits the page scan for boolean signature-type
// fields once a high-confidence YES appears. Comprehensive groups never
// short-circuit.
func (s *Service) earlyExit(group fieldgroup.Group, field domain.FieldRequest, best domain.ModelResult) bool {
	if !fieldgroup.EarlyExitAllowed(group) || !field.IsBoolean() {
		return false
	}
	return best.Response == domain.AnswerYes && best.Confidence >= s.params.EarlyExitThreshold
}

// fieldInputs builds the model inputs for one field: the whole document
// text for direct strategies, otherwise one input per candidate page
// (image when the page was rendered and the document is scan-only).
func (s *Service) fieldInputs(run *runState, idx int, prompt string) []domain.ModelInput {
	field := run.fields[idx]

	if run.plan.Strategy == domain.StrategyDirect || len(run.pages[idx]) == 0 {
		return []domain.ModelInput{{
			Text:         run.document.Text(),
			Prompt:       prompt,
			ExpectedType: field.ExpectedType,
			FieldID:      field.FieldID,
		}}
	}

	inputs := make([]domain.ModelInput, 0, len(run.pages[idx]))
	for _, pageNum := range run.pages[idx] {
		page, ok := run.document.PageByNumber(pageNum)
		if !ok {
			continue
		}
		in := domain.ModelInput{
			Prompt:       prompt,
			ExpectedType: field.ExpectedType,
			FieldID:      field.FieldID,
			Page:         pageNum,
		}
		if run.plan.ScanOnly && len(page.Image) > 0 {
			in.Image = page.Image
		} else {
			in.Text = page.Text
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// dualCall runs primary and secondary concurrently for one input. A
// single surviving side still yields a pair with the failed side empty;
// both failing reports not ok.
func (s *Service) dualCall(ctx context.Context, input domain.ModelInput) (resultPair, bool) {
	type callOut struct {
		out domain.ModelOutput
		err error
	}
	var primary, secondary callOut
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		primary.out, primary.err = s.primary.Extract(ctx, input)
	}()
	go func() {
		defer wg.Done()
		secondary.out, secondary.err = s.secondary.Extract(ctx, input)
	}()
	wg.Wait()

	if primary.err != nil && secondary.err != nil {
		s.logger.Warn("both models failed for field",
			zap.String("field_id", input.FieldID),
			zap.Int("page", input.Page),
			zap.NamedError("primary", primary.err),
			zap.NamedError("secondary", secondary.err))
		return resultPair{}, false
	}

	var pair resultPair
	pair.primary = toResult(input, s.primary.ID(), primary.out, primary.err)
	pair.secondary = toResult(input, s.secondary.ID(), secondary.out, secondary.err)
	return pair, true
}

func toResult(input domain.ModelInput, modelID string, out domain.ModelOutput, err error) domain.ModelResult {
	if err != nil {
		return domain.ModelResult{FieldID: input.FieldID, Page: input.Page, ModelID: modelID}
	}
	return domain.ModelResult{
		FieldID:    input.FieldID,
		Page:       input.Page,
		Response:   out.Response,
		Confidence: out.Confidence,
		ModelID:    out.ModelID,
		TokensUsed: out.TokensUsed,
		Elapsed:    out.Elapsed,
	}
}

func (s *Service) retrievalField(ctx context.Context, run *runState, idx int) domain.ModelResult {
	field := run.fields[idx]
	var (
		result domain.ModelResult
		err    error
	)
	if run.groups[idx] == fieldgroup.GroupComprehensive {
		result, err = s.retriever.AnswerComprehensive(ctx, run.sessionID, field)
	} else {
		result, err = s.retriever.Answer(ctx, run.sessionID, field)
	}
	if err != nil {
		s.logger.Warn("retrieval answer failed",
			zap.String("field_id", field.FieldID),
			zap.Error(err))
		return domain.ModelResult{FieldID: field.FieldID, Response: domain.NotFound}
	}
	return result
}

func missingIndexes(values []string) []int {
	var out []int
	for i, v := range values {
		if v == domain.NotFound || v == "" {
			out = append(out, i)
		}
	}
	return out
}

func meanPositive(confs []float64) float64 {
	var sum float64
	var n int
	for _, c := range confs {
		if c > 0 {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
