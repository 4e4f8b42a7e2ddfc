package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/models"
)

var paymentMethods = []models.PaymentMethod{models.PaymentCOD, models.PaymentBankTransfer}

type formField struct {
	key   string
	label string
	value string
}

type tickMsg time.Duration

type expiredMsg struct{}

type submitResult struct {
	order models.Order
	err   error
}

type checkoutModel struct {
	ctx     context.Context
	orch    *checkout.Orchestrator
	session models.CheckoutSession

	fields    []formField
	focus     int
	method    int
	remaining time.Duration

	submitting bool
	expired    bool
	placed     *models.Order
	fieldErrs  map[string]string
	status     string
}

func newCheckoutModel(ctx context.Context, o *checkout.Orchestrator, info checkout.ShippingInfo, method models.PaymentMethod) *checkoutModel {
	m := &checkoutModel{
		ctx:  ctx,
		orch: o,
		fields: []formField{
			{key: checkout.FieldRecipientName, label: "Recipient", value: info.RecipientName},
			{key: checkout.FieldPhoneNumber, label: "Phone", value: info.PhoneNumber},
			{key: checkout.FieldAddress, label: "Address", value: info.Address},
			{key: "notes", label: "Notes", value: info.Notes},
		},
	}
	for i, pm := range paymentMethods {
		if pm == method {
			m.method = i
		}
	}
	return m
}

// the payment selector sits after the text fields
func (m *checkoutModel) paymentFocused() bool { return m.focus == len(m.fields) }

func (m *checkoutModel) info() checkout.ShippingInfo {
	return checkout.ShippingInfo{
		RecipientName: m.fields[0].value,
		PhoneNumber:   m.fields[1].value,
		Address:       m.fields[2].value,
		Notes:         m.fields[3].value,
	}
}

func waitExpired(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return expiredMsg{}
	}
}

func (m *checkoutModel) submit() tea.Cmd {
	ctx, o, info, method := m.ctx, m.orch, m.info(), paymentMethods[m.method]
	return func() tea.Msg {
		placed, err := o.Submit(ctx, info, method)
		return submitResult{order: placed, err: err}
	}
}

func (m *checkoutModel) Init() tea.Cmd {
	return waitExpired(m.orch.Expired())
}

func (m *checkoutModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.remaining = time.Duration(msg)
		return m, nil

	case expiredMsg:
		m.expired = true
		m.remaining = 0
		return m, tea.Quit

	case submitResult:
		m.submitting = false
		var verr *checkout.ValidationError
		switch {
		case msg.err == nil:
			m.placed = &msg.order
			return m, tea.Quit
		case errors.Is(msg.err, checkout.ErrExpired):
			m.expired = true
			return m, tea.Quit
		case errors.As(msg.err, &verr):
			m.fieldErrs = verr.Fields
			m.status = "Please correct the highlighted fields."
		default:
			m.fieldErrs = nil
			m.status = describe(msg.err) + " Press enter to try again."
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *checkoutModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "down":
		m.focus = (m.focus + 1) % (len(m.fields) + 1)
		return m, nil
	case "shift+tab", "up":
		m.focus = (m.focus + len(m.fields)) % (len(m.fields) + 1)
		return m, nil
	case "enter":
		if !m.paymentFocused() {
			m.focus++
			return m, nil
		}
		if m.submitting {
			return m, nil
		}
		m.submitting = true
		m.status = "Placing your order..."
		return m, m.submit()
	}

	if m.paymentFocused() {
		switch k.String() {
		case "left", "right", " ":
			m.method = (m.method + 1) % len(paymentMethods)
		}
		return m, nil
	}

	f := &m.fields[m.focus]
	switch k.Type {
	case tea.KeyBackspace:
		if r := []rune(f.value); len(r) > 0 {
			f.value = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		f.value += string(k.Runes)
	}
	return m, nil
}

func (m *checkoutModel) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "Checkout")
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Reserved items: %d   Total: %s\n", len(m.session.Reservations), m.session.TotalAmount.StringFixed(0))
	fmt.Fprintf(b, "Time left to complete your order: %s\n", checkout.FormatRemaining(m.remaining))
	fmt.Fprintln(b, "")

	for i, f := range m.fields {
		marker := " "
		if i == m.focus {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %-10s %s\n", marker, f.label+":", f.value)
		if msg, ok := m.fieldErrs[f.key]; ok {
			fmt.Fprintf(b, "   %-10s \x1b[31m%s\x1b[0m\n", "", msg)
		}
	}

	marker := " "
	if m.paymentFocused() {
		marker = ">"
	}
	opts := make([]string, 0, len(paymentMethods))
	for i, pm := range paymentMethods {
		if i == m.method {
			opts = append(opts, "("+string(pm)+")")
		} else {
			opts = append(opts, " "+string(pm)+" ")
		}
	}
	fmt.Fprintf(b, " %s %-10s %s\n", marker, "Payment:", strings.Join(opts, " "))
	if msg, ok := m.fieldErrs[checkout.FieldPaymentMethod]; ok {
		fmt.Fprintf(b, "   %-10s \x1b[31m%s\x1b[0m\n", "", msg)
	}

	// field errors without an input row of their own
	var other []string
	for k, v := range m.fieldErrs {
		if k != checkout.FieldRecipientName && k != checkout.FieldPhoneNumber &&
			k != checkout.FieldAddress && k != checkout.FieldPaymentMethod {
			other = append(other, v)
		}
	}
	sort.Strings(other)
	for _, v := range other {
		fmt.Fprintf(b, "   %s\n", v)
	}

	fmt.Fprintln(b, "")
	if m.status != "" {
		fmt.Fprintln(b, m.status)
	}
	fmt.Fprintln(b, "\nControls: tab/up/down move, left/right choose payment, enter on payment to place the order, esc to leave")
	return b.String()
}

func runCheckoutScreen(ctx context.Context, a *app, opts []checkout.Option, info checkout.ShippingInfo, method models.PaymentMethod) error {
	var prog *tea.Program
	opts = append(opts, checkout.WithTickHandler(func(d time.Duration) {
		prog.Send(tickMsg(d))
	}))

	o := checkout.New(a.api, a.cart, opts...)
	defer o.Close()

	m := newCheckoutModel(ctx, o, info, method)
	prog = tea.NewProgram(m, tea.WithContext(ctx))

	fmt.Fprintln(a.out, "Reserving your items...")
	session, err := o.Start(ctx)
	if err != nil {
		return err
	}
	m.session = session
	m.remaining = o.Remaining()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("checkout screen: %w", err)
	}

	switch {
	case m.placed != nil:
		printPlaced(a.out, *m.placed)
		return nil
	case m.expired:
		return checkout.ErrExpired
	default:
		fmt.Fprintln(a.out, "Checkout left. Your reservation is released when it expires.")
		return nil
	}
}
