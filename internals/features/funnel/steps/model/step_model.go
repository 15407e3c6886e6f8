package model

/* ===================== Steps ===================== */

type Step string

const (
	StepImpact  Step = "impact"
	StepName    Step = "name"
	StepPhone   Step = "phone"
	StepSMS     Step = "sms"
	StepPayment Step = "payment"
	StepSuccess Step = "success"
	StepWelcome Step = "welcome"
	StepCause   Step = "cause"
	StepEmail   Step = "email"
	StepFailure Step = "failure"
)

// Order is the fixed step list. Positions only matter for the `step` query
// parameter and for progress display.
var Order = []Step{
	StepImpact,
	StepName,
	StepPhone,
	StepSMS,
	StepPayment,
	StepSuccess,
	StepWelcome,
	StepCause,
	StepEmail,
	StepFailure,
}

// Index returns the position of s in Order, or -1.
func (s Step) Index() int {
	for i, st := range Order {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Step) Valid() bool { return s.Index() >= 0 }

/* ===================== Events ===================== */

type Event string

const (
	EventNext         Event = "next"
	EventCodeSent     Event = "code_sent"
	EventVerified     Event = "verified"
	EventAlreadyDonor Event = "already_donor"
	EventPaid         Event = "paid"
	EventDeclined     Event = "declined"
	EventRetry        Event = "retry"
)

/* ===================== Descriptors ===================== */

type InputType string

const (
	InputNone    InputType = "none"
	InputText    InputType = "text"
	InputTel     InputType = "tel"
	InputCode    InputType = "code"
	InputChoice  InputType = "choice"
	InputEmail   InputType = "email"
	InputPayment InputType = "payment"
)

type Field string

const (
	FieldNone    Field = ""
	FieldName    Field = "legal_name"
	FieldPhone   Field = "phone"
	FieldSMSCode Field = "sms_code"
	FieldCause   Field = "cause"
	FieldEmail   Field = "email"
)

// Descriptor is the static description of one step. Validation lives in the
// steps service so the model stays free of validator wiring.
type Descriptor struct {
	Step        Step      `json:"step"`
	Question    string    `json:"question"`
	Placeholder string    `json:"placeholder,omitempty"`
	Field       Field     `json:"field,omitempty"`
	InputType   InputType `json:"input_type"`
}

var descriptors = map[Step]Descriptor{
	StepImpact:  {Step: StepImpact, Question: "Sua doação transforma vidas. Vamos começar?", InputType: InputNone},
	StepName:    {Step: StepName, Question: "Qual é o seu nome completo?", Placeholder: "Nome e sobrenome", Field: FieldName, InputType: InputText},
	StepPhone:   {Step: StepPhone, Question: "Qual é o seu celular?", Placeholder: "(11) 99999-8888", Field: FieldPhone, InputType: InputTel},
	StepSMS:     {Step: StepSMS, Question: "Digite o código que enviamos por SMS", Placeholder: "000000", Field: FieldSMSCode, InputType: InputCode},
	StepPayment: {Step: StepPayment, Question: "Como você quer pagar?", InputType: InputPayment},
	StepSuccess: {Step: StepSuccess, Question: "Doação confirmada! Obrigado.", InputType: InputNone},
	StepWelcome: {Step: StepWelcome, Question: "Boas-vindas à nossa comunidade de doadores.", InputType: InputNone},
	StepCause:   {Step: StepCause, Question: "Qual causa mais toca você?", Field: FieldCause, InputType: InputChoice},
	StepEmail:   {Step: StepEmail, Question: "Para onde enviamos seus recibos?", Placeholder: "voce@email.com", Field: FieldEmail, InputType: InputEmail},
	StepFailure: {Step: StepFailure, Question: "Não conseguimos concluir o pagamento.", InputType: InputNone},
}

func DescriptorOf(s Step) Descriptor { return descriptors[s] }

/* ===================== Causes ===================== */

var Causes = []string{
	"educacao",
	"saude",
	"meio_ambiente",
	"assistencia_social",
	"cultura",
}
