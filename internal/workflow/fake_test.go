package workflow

import (
	"context"
	"fmt"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/captcha"
)

const resultsFirstPage = `<html><body>
<div id="countList">
	<a id="previous" href="/m3-emv-plate/webpickno/queryPickNo?method=pickNoList&amp;page=9">last</a>
	<div class="number_cell"><a class="number">CAT-2401</a></div>
</div>
</body></html>`

const resultsLastPage = `<html><body>
<div id="countList">
	<div class="number_cell"><a class="number">CAT-2530</a></div>
	<div class="number_cell"><a class="number">
		CAT-2531
	</a></div>
</div>
</body></html>`

// fakePage emulates the pick number form. Options answers are consumed in
// order per selector, the last one repeats.
type fakePage struct {
	options  map[string][][]browser.Option
	polls    map[string]int
	navErrs  []error
	href     string
	pages    map[string]string
	onSelect func(selector string)

	current     string
	log         []string
	navigations []string
	fills       map[string]string
	closed      int
}

func newFakePage() *fakePage {
	populated := func(opts ...browser.Option) [][]browser.Option {
		return [][]browser.Option{
			{{Value: "", Text: "請選擇"}},
			append([]browser.Option{{Value: "", Text: "請選擇"}}, opts...),
		}
	}
	return &fakePage{
		options: map[string][][]browser.Option{
			"#selDeptCode": {{
				{Value: "1", Text: "臺北市區監理所"},
				{Value: "2", Text: "臺北區監理所"},
			}},
			"#selStationCode": populated(
				browser.Option{Value: "20", Text: "臺北區監理所"},
				browser.Option{Value: "25", Text: "基隆監理站"},
			),
			"#selWindowNo": populated(
				browser.Option{Value: "0", Text: "全部"},
				browser.Option{Value: "251", Text: "基隆站"},
			),
			"#selCarType": {{
				{Value: "C", Text: "汽車"},
				{Value: "M", Text: "機車"},
			}},
			"#selEnergyType": populated(
				browser.Option{Value: "E", Text: "電能"},
				browser.Option{Value: "C", Text: "非電能"},
			),
			"#selPlateType": {
				{{Value: "", Text: "請選擇"}, {Value: "9", Text: "營業小客車"}},
				{{Value: "", Text: "請選擇"}, {Value: "9", Text: "營業小客車"}, {Value: "3", Text: "自用小客貨車"}},
			},
		},
		polls: map[string]int{},
		href:  "/m3-emv-plate/webpickno/queryPickNo?method=pickNoList&page=9",
		pages: map[string]string{
			DefaultFormURL: resultsFirstPage,
			"https://www.mvdis.gov.tw/m3-emv-plate/webpickno/queryPickNo?method=pickNoList&page=9": resultsLastPage,
		},
		fills: map[string]string{},
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	if len(p.navErrs) > 0 {
		err := p.navErrs[0]
		p.navErrs = p.navErrs[1:]
		if err != nil {
			return err
		}
	}
	p.current = url
	p.log = append(p.log, "navigate "+url)
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.log = append(p.log, "reload")
	return nil
}

func (p *fakePage) Options(ctx context.Context, selector string) ([]browser.Option, error) {
	answers := p.options[selector]
	if len(answers) == 0 {
		return nil, nil
	}
	i := p.polls[selector]
	p.polls[selector]++
	if i >= len(answers) {
		i = len(answers) - 1
	}
	return answers[i], nil
}

func (p *fakePage) Select(ctx context.Context, selector, value string) error {
	p.log = append(p.log, fmt.Sprintf("select %s=%s", selector, value))
	if p.onSelect != nil {
		p.onSelect(selector)
	}
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.log = append(p.log, "click "+selector)
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, text string) error {
	p.fills[selector] = text
	p.log = append(p.log, fmt.Sprintf("fill %s=%s", selector, text))
	return nil
}

func (p *fakePage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	if selector == lastPageSelector && name == "href" && p.href != "" {
		return p.href, true, nil
	}
	return "", false, nil
}

func (p *fakePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	p.log = append(p.log, "screenshot "+selector)
	return []byte("png"), nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return p.pages[p.current], nil
}

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

type fakeSession struct {
	page     browser.Page
	err      error
	released int
	uses     int
}

func (s *fakeSession) OpenPage(ctx context.Context) (browser.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *fakeSession) Release() {
	s.released++
}

func (s *fakeSession) MarkUse() {
	s.uses++
}

type solverAnswer struct {
	text string
	err  error
}

type fakeSolver struct {
	answers []solverAnswer
	calls   int
}

func (s *fakeSolver) Solve(ctx context.Context, image []byte) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return s.answers[i].text, s.answers[i].err
}

func rejected(reason error) solverAnswer {
	return solverAnswer{err: &captcha.RejectedError{Reason: reason}}
}

type fakeScraper struct {
	results []Result
	errs    []error
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeScraper) Run(ctx context.Context) (Result, error) {
	i := s.calls
	s.calls++
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	var res Result
	if i < len(s.results) {
		res = s.results[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return res, err
}

type recordedValue struct {
	value string
	at    time.Time
}
