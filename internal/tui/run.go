package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/search"
)

// resultLimit is the page size requested per search.
const resultLimit = 50

// TigerSearch returns a search function over the tiger registry.
func TigerSearch(client *api.Client) search.Func[api.Page[api.Tiger]] {
	return func(ctx context.Context, query string) (api.Page[api.Tiger], error) {
		return client.Tigers.List(ctx, api.ListOptions{Page: 1, PageSize: resultLimit, Search: query})
	}
}

// Run shows the search screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, client *api.Client, delay time.Duration, logger *zap.Logger) error {
	var p *tea.Program
	s := search.New(TigerSearch(client), func(r search.Result[api.Page[api.Tiger]]) {
		p.Send(ResultsMsg{Query: r.Query, Tigers: r.Value.Data, Total: r.Value.Total, Err: r.Err})
	}, search.Options{Delay: delay, Logger: logger})
	defer s.Close()

	p = tea.NewProgram(New(s.Type), tea.WithContext(ctx), tea.WithAltScreen())
	s.Type("")
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
