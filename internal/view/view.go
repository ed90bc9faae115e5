// Package view builds the catalog page models and renders them with html/template.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/catalog"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/filter"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	fallbackGlyph    = "🔩"
	noCategoryLabel  = "Non catégorisé"
	noDescription    = "Pas de description."
	allCategories    = "Toutes"
	assetsURLPrefix  = "/assets/"
	flashKindSuccess = "success"
	flashKindError   = "error"
)

// Catalog is the read side of the catalog used for rendering.
type Catalog interface {
	Products() []domain.Product
	Find(id int) (domain.Product, bool)
	Categories() []string
	Stats() catalog.Stats
}

// ReviewSource exposes the review store to the renderer.
type ReviewSource interface {
	Count(productID int) int
	List(productID int) []domain.Review
}

// AssetChecker reports whether a static asset exists.
type AssetChecker interface {
	Has(rel string) bool
}

// Card is one product tile.
type Card struct {
	ID              int
	Name            string
	Category        string
	HasCategory     bool
	Description     template.HTML
	HasDescription  bool
	ImageURL        string
	ImageAvailable  bool
	Emoji           string
	InStock         bool
	StockLabel      string
	Price           string
	Affordable      bool
	ReviewCount     int
	ReviewLabel     string
	ReviewHref      string
	ReviewsFragment string
}

// Link is a control that moves to another filter state.
type Link struct {
	Label  string
	Value  string
	Href   string
	Active bool
}

// Slider describes the price bound control.
type Slider struct {
	Value string
	Max   string
	Label string
}

// ReviewItem is one review line in the dialog.
type ReviewItem struct {
	Author  string
	Comment string
	Rating  int
	Stars   string
}

// Modal is the reviews dialog of one product.
type Modal struct {
	ProductID int
	Title     string
	Reviews   []ReviewItem
	CloseHref string
}

// Option is a product choice in the review form.
type Option struct {
	ID       int
	Label    string
	Selected bool
}

// Form holds the review form values and its feedback message.
type Form struct {
	Options     []Option
	Author      string
	Comment     string
	Rating      int
	Ratings     []int
	Message     string
	MessageKind string
	ClearAfter  int64
	CSRFToken   string
	Action      string
}

// Page is the full listing model.
type Page struct {
	Title       string
	Stats       catalog.Stats
	Search      string
	Hidden      []Hidden
	Slider      Slider
	Categories  []Link
	Sorts       []Link
	Quick       []Link
	ResetHref   string
	ResultCount string
	Cards       []Card
	Empty       bool
	Modal       *Modal
	Form        Form
}

// Hidden is a hidden input preserving state across the filter form.
type Hidden struct {
	Name  string
	Value string
}

// Notice is a message shown above the form after a redirect.
type Notice struct {
	Message    string
	Kind       string
	ClearAfter int64
}

// PageInput gathers everything BuildPage needs.
type PageInput struct {
	State      filter.State
	OpenReview int
	Notice     *Notice
	FormValues FormValues
	CSRFToken  string
}

// FormValues are the submitted review fields echoed back after a validation error.
type FormValues struct {
	ProductID int
	Author    string
	Comment   string
	Rating    int
	Error     string
}

// Renderer builds view models and executes the page templates.
type Renderer struct {
	catalog Catalog
	assets  AssetChecker
	desc    *descriptionRenderer
	tmpl    *template.Template
}

// New parses the embedded templates. A nil assets checker treats every image as present.
func New(c Catalog, assets AssetChecker) (*Renderer, error) {
	tmpl, err := template.New("_root").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	return &Renderer{
		catalog: c,
		assets:  assets,
		desc:    newDescriptionRenderer(),
		tmpl:    tmpl,
	}, nil
}

// BuildPage derives the listing model from the filter state and the visitor's reviews.
func (r *Renderer) BuildPage(in PageInput, reviews ReviewSource) Page {
	state := in.State
	visible := state.Apply(r.catalog.Products())

	cards := make([]Card, 0, len(visible))
	for _, p := range visible {
		cards = append(cards, r.card(p, state, reviews.Count(p.ID)))
	}

	page := Page{
		Title:       "Les Bonnes Pièces",
		Stats:       r.catalog.Stats(),
		Search:      state.Search,
		Hidden:      hiddenInputs(state),
		Slider:      Slider{Value: state.MaxPrice.String(), Max: state.Ceiling().String(), Label: SliderLabel(state.MaxPrice)},
		Categories:  r.categoryLinks(state),
		Sorts:       sortLinks(state),
		Quick:       quickLinks(state),
		ResetHref:   state.Reset().Href(),
		ResultCount: ResultCountLabel(len(visible)),
		Cards:       cards,
		Empty:       len(visible) == 0,
		Form:        r.form(in),
	}
	if in.OpenReview > 0 {
		if modal, ok := r.BuildModal(in.OpenReview, state, reviews); ok {
			page.Modal = &modal
		}
	}
	return page
}

// BuildModal returns the reviews dialog for a product, or false when the product is unknown.
func (r *Renderer) BuildModal(productID int, state filter.State, reviews ReviewSource) (Modal, bool) {
	p, ok := r.catalog.Find(productID)
	if !ok {
		return Modal{}, false
	}
	list := reviews.List(productID)
	items := make([]ReviewItem, 0, len(list))
	for _, rv := range list {
		items = append(items, ReviewItem{Author: rv.Author, Comment: rv.Comment, Rating: rv.Rating, Stars: Stars(rv.Rating)})
	}
	return Modal{
		ProductID: p.ID,
		Title:     ModalTitle(p.Name),
		Reviews:   items,
		CloseHref: state.Href(),
	}, true
}

func (r *Renderer) card(p domain.Product, state filter.State, reviewCount int) Card {
	c := Card{
		ID:              p.ID,
		Name:            p.Name,
		Category:        noCategoryLabel,
		HasCategory:     p.HasCategory(),
		Emoji:           p.Emoji,
		InStock:         p.InStock,
		StockLabel:      StockLabel(p.InStock),
		Price:           FormatPrice(p.Price),
		Affordable:      p.Affordable(),
		ReviewCount:     reviewCount,
		ReviewLabel:     ReviewButtonLabel(reviewCount),
		ReviewHref:      state.ReviewHref(p.ID),
		ReviewsFragment: fragmentHref(p.ID, state),
		Description:     template.HTML(template.HTMLEscapeString(noDescription)),
	}
	if c.Emoji == "" {
		c.Emoji = fallbackGlyph
	}
	if c.HasCategory {
		c.Category = p.Category
	}
	if p.HasDescription() {
		if html := r.desc.Render(p.Description); html != "" {
			c.Description = html
			c.HasDescription = true
		}
	}
	if image := strings.TrimPrefix(strings.TrimSpace(p.Image), "/"); image != "" {
		c.ImageURL = assetsURLPrefix + image
		c.ImageAvailable = r.assets == nil || r.assets.Has(image)
	}
	return c
}

func (r *Renderer) categoryLinks(state filter.State) []Link {
	categories := r.catalog.Categories()
	links := make([]Link, 0, len(categories)+1)
	links = append(links, Link{
		Label:  allCategories,
		Href:   state.WithCategory("").Href(),
		Active: state.Category == "",
	})
	for _, c := range categories {
		links = append(links, Link{
			Label:  c,
			Value:  c,
			Href:   state.WithCategory(c).Href(),
			Active: state.Category == c,
		})
	}
	return links
}

var sortChoices = []struct {
	mode  domain.SortMode
	label string
}{
	{domain.SortNone, "Par défaut"},
	{domain.SortPriceAsc, "Prix croissant"},
	{domain.SortPriceDesc, "Prix décroissant"},
}

func sortLinks(state filter.State) []Link {
	links := make([]Link, 0, len(sortChoices))
	for _, choice := range sortChoices {
		links = append(links, Link{
			Label:  choice.label,
			Value:  string(choice.mode),
			Href:   state.WithSort(choice.mode).Href(),
			Active: state.Sort == choice.mode,
		})
	}
	return links
}

var quickChoices = []struct {
	filter domain.QuickFilter
	label  string
}{
	{domain.QuickAffordable, "Abordables (≤ 35 €)"},
	{domain.QuickInStock, "En stock"},
	{domain.QuickHasDescription, "Avec description"},
}

func quickLinks(state filter.State) []Link {
	links := make([]Link, 0, len(quickChoices))
	for _, choice := range quickChoices {
		links = append(links, Link{
			Label:  choice.label,
			Value:  string(choice.filter),
			Href:   state.ToggleQuick(choice.filter).Href(),
			Active: state.Quick == choice.filter,
		})
	}
	return links
}

// fragmentHref is the htmx endpoint of the reviews dialog; it carries the filter state so
// closing the dialog returns to the same listing.
func fragmentHref(productID int, state filter.State) string {
	path := fmt.Sprintf("/pieces/%d/avis", productID)
	if q := state.Query().Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

// hiddenInputs carries the selections the search form does not edit.
func hiddenInputs(state filter.State) []Hidden {
	var hidden []Hidden
	if state.Category != "" {
		hidden = append(hidden, Hidden{Name: filter.ParamCategory, Value: state.Category})
	}
	if state.Sort != domain.SortNone {
		hidden = append(hidden, Hidden{Name: filter.ParamSort, Value: string(state.Sort)})
	}
	if state.Quick != domain.QuickNone {
		hidden = append(hidden, Hidden{Name: filter.ParamQuick, Value: string(state.Quick)})
	}
	return hidden
}

func (r *Renderer) form(in PageInput) Form {
	products := r.catalog.Products()
	options := make([]Option, 0, len(products))
	for _, p := range products {
		options = append(options, Option{
			ID:       p.ID,
			Label:    p.Name,
			Selected: p.ID == in.FormValues.ProductID,
		})
	}
	f := Form{
		Options:   options,
		Author:    in.FormValues.Author,
		Comment:   in.FormValues.Comment,
		Rating:    in.FormValues.Rating,
		Ratings:   []int{1, 2, 3, 4, 5},
		CSRFToken: in.CSRFToken,
		Action:    "/avis",
	}
	if in.State.Query().Encode() != "" {
		f.Action = "/avis?" + in.State.Query().Encode()
	}
	switch {
	case in.FormValues.Error != "":
		f.Message = in.FormValues.Error
		f.MessageKind = flashKindError
	case in.Notice != nil:
		f.Message = in.Notice.Message
		f.MessageKind = in.Notice.Kind
		f.ClearAfter = in.Notice.ClearAfter
	}
	return f
}

// RenderPage writes the full HTML document.
func (r *Renderer) RenderPage(w io.Writer, page Page) error {
	return r.tmpl.ExecuteTemplate(w, "page", page)
}

// RenderModal writes only the reviews dialog, for htmx swaps.
func (r *Renderer) RenderModal(w io.Writer, modal Modal) error {
	return r.tmpl.ExecuteTemplate(w, "modal", modal)
}
