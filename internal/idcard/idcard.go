// Package idcard формирует PDF цифрового членского билета.
package idcard

import (
	"errors"
	"fmt"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/mmeshcher/clubhub/internal/model"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ErrNoUniqueID возвращается для пользователя без членского идентификатора.
var ErrNoUniqueID = errors.New("user has no member id")

// Generator формирует членские билеты клуба.
type Generator struct {
	club string
}

// NewGenerator создаёт генератор билетов для клуба.
func NewGenerator(club string) *Generator {
	return &Generator{club: club}
}

// Generate возвращает PDF билета. QR-код содержит уникальный идентификатор члена.
func (g *Generator) Generate(u *model.User, issuedAt time.Time) ([]byte, error) {
	if u == nil || u.UniqueID == nil {
		return nil, ErrNoUniqueID
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A6).
		WithLeftMargin(8).WithRightMargin(8).
		WithTopMargin(8).WithBottomMargin(8).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(g.club+" membership card", true).
		WithAuthor(g.club, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(row.New(12).Add(
		col.New(12).Add(text.New(g.club, props.Text{
			Style: fontstyle.Bold, Size: 13, Align: align.Center, Color: colorPrimary, Top: 2,
		})),
	))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(g.holderRows(u)...)
	m.AddRows(line.NewRow(3))
	m.AddRows(row.New(40).Add(
		col.New(12).Add(code.NewQr(*u.UniqueID, props.Rect{Percent: 95, Center: true})),
	))
	m.AddRows(row.New(8).Add(
		col.New(12).Add(text.New(*u.UniqueID, props.Text{
			Style: fontstyle.Bold, Size: 11, Align: align.Center, Top: 2,
		})),
	))
	m.AddRows(row.New(6).Add(
		col.New(12).Add(text.New("Issued "+issuedAt.Format("02 Jan 2006"), props.Text{
			Size: 7, Align: align.Center, Color: colorGray, Top: 1,
		})),
	))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate id card: %w", err)
	}
	return doc.GetBytes(), nil
}

func (g *Generator) holderRows(u *model.User) []core.Row {
	field := func(label, value string) core.Row {
		return row.New(7).Add(
			col.New(4).Add(text.New(label, props.Text{Size: 8, Color: colorGray, Top: 1})),
			col.New(8).Add(text.New(value, props.Text{Size: 9, Style: fontstyle.Bold, Top: 1})),
		)
	}

	rows := []core.Row{
		field("Name", u.Name),
		field("Department", u.Department),
		field("Role", string(u.Role)),
	}
	if u.StudentID != "" {
		rows = append(rows, field("Student ID", u.StudentID))
	}
	return rows
}
