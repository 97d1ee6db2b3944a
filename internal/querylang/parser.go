package querylang

// Parser parses a Kibana-style query string into an expression tree.
//
// Grammar (EBNF):
//
//	query      = or_expr EOF
//	or_expr    = and_expr ( "OR" and_expr )*
//	and_expr   = unary_expr ( [ "AND" ] unary_expr )*
//	unary_expr = "NOT" unary_expr | primary
//	primary    = "(" or_expr ")" | expression
//	expression = column ":" "{" or_expr "}"
//	           | column ":" ( value | list )
//	           | column range_op value
//	           | value
//	list       = "(" [ "AND" | "OR" | "NOT" ] value ( [ "AND" | "OR" ] value )* ")"
//	range_op   = "<" | "<=" | ">" | ">="
//	column     = WORD
//	value      = WORD | DATE
//
// Precedence (highest to lowest):
//  1. Parentheses
//  2. NOT (prefix, right-associative)
//  3. AND (implicit or explicit)
//  4. OR
//
// A bare value searches every column. Values are classified as integral,
// boolean, null or string, in that order.
type parser struct {
	lex   *Lexer
	cur   Lexeme
	dates DateParser
}

// DateParser converts the text of a date("...") literal to epoch
// milliseconds.
type DateParser interface {
	EpochMillis(s string) (int64, bool)
}

// Parse parses a query string into an expression tree. dates resolves
// date literals; when nil, date literals are rejected.
func Parse(input string, dates DateParser) (Expr, error) {
	p := &parser{lex: NewLexer(input), dates: dates}

	// Prime the parser with the first token.
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.cur.Kind == TokEOF {
		return nil, newParseError(0, ErrEmptyQuery, "empty query")
	}

	expr, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}

	if p.cur.Kind != TokEOF {
		return nil, p.unexpected()
	}

	return expr, nil
}

// advance moves to the next token.
func (p *parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) unexpected() error {
	switch p.cur.Kind {
	case TokEOF:
		return newParseError(p.cur.Pos, ErrUnexpectedEOF, "unexpected end of query")
	case TokRParen:
		return newParseError(p.cur.Pos, ErrUnmatchedParen, "unmatched closing parenthesis")
	case TokRBrace:
		return newParseError(p.cur.Pos, ErrUnmatchedBrace, "unmatched closing brace")
	default:
		return newParseError(p.cur.Pos, ErrUnexpectedToken, "unexpected token %s", p.cur.Kind)
	}
}

// parseOrExpr parses: or_expr = and_expr ( "OR" and_expr )*
func (p *parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}

	for p.cur.Kind == TokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}

		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}

		left = flattenOr(left, right)
	}

	return left, nil
}

// parseAndExpr parses: and_expr = unary_expr ( [ "AND" ] unary_expr )*
func (p *parser) parseAndExpr() (Expr, error) {
	left, err := p.parseUnaryExpr()
	if err != nil {
		return nil, err
	}

	for p.isAndStart() {
		if p.cur.Kind == TokAnd {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}

		right, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}

		left = flattenAnd(left, right)
	}

	return left, nil
}

// isAndStart returns true if the current token continues an AND sequence,
// explicitly or implicitly.
func (p *parser) isAndStart() bool {
	switch p.cur.Kind {
	case TokAnd, TokNot, TokLParen, TokWord, TokDate:
		return true
	default:
		return false
	}
}

// parseUnaryExpr parses: unary_expr = "NOT" unary_expr | primary
func (p *parser) parseUnaryExpr() (Expr, error) {
	if p.cur.Kind == TokNot {
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == TokEOF {
			return nil, newParseError(pos, ErrUnexpectedEOF, "expected expression after NOT")
		}

		term, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		term.Invert()
		return term, nil
	}

	return p.parsePrimary()
}

// parsePrimary parses: primary = "(" or_expr ")" | expression
func (p *parser) parsePrimary() (Expr, error) {
	if p.cur.Kind == TokLParen {
		openPos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == TokRParen {
			return nil, newParseError(openPos, ErrEmptyQuery, "empty parentheses")
		}

		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}

		if p.cur.Kind != TokRParen {
			return nil, newParseError(openPos, ErrUnmatchedParen, "unmatched opening parenthesis")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil
	}

	return p.parseExpression()
}

// parseExpression parses a column expression or a bare value.
func (p *parser) parseExpression() (Expr, error) {
	first := p.cur
	switch first.Kind {
	case TokWord:
	case TokDate:
		// A bare date searches every column.
		lit, err := p.literal(first)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return NewFilter(ParseColumnDescriptor("*"), OpEq, lit), nil
	default:
		return nil, p.unexpected()
	}

	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.cur.Kind {
	case TokColon:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseColumnValue(ParseColumnDescriptor(first.Lit))

	case TokLt, TokLte, TokGt, TokGte:
		op := rangeOp(p.cur.Kind)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokWord && p.cur.Kind != TokDate {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected value after %s, got %s", op, p.cur.Kind)
		}
		lit, err := p.literal(p.cur)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return NewFilter(ParseColumnDescriptor(first.Lit), op, lit), nil
	}

	lit, err := p.literal(first)
	if err != nil {
		return nil, err
	}
	return NewFilter(ParseColumnDescriptor("*"), OpEq, lit), nil
}

// parseColumnValue parses what follows "column:".
func (p *parser) parseColumnValue(col *ColumnDescriptor) (Expr, error) {
	switch p.cur.Kind {
	case TokLBrace:
		openPos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.Kind != TokRBrace {
			return nil, newParseError(openPos, ErrUnmatchedBrace, "unmatched opening brace")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		prefix := col.Tokens()
		Filters(inner, func(f *FilterExpr) {
			f.Column.Prepend(prefix)
		})
		return inner, nil

	case TokLParen:
		return p.parseList(col)

	case TokWord, TokDate:
		lit, err := p.literal(p.cur)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return NewFilter(col, OpEq, lit), nil

	default:
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected value after ':', got %s", p.cur.Kind)
	}
}

// parseList parses: list = "(" [ "AND" | "OR" | "NOT" ] value ( [ "AND" | "OR" ] value )* ")"
//
// Values are ORed unless the list names AND. A leading NOT negates every
// value and ANDs them.
func (p *parser) parseList(col *ColumnDescriptor) (Expr, error) {
	openPos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}

	condition := TokOr
	explicit := false
	switch p.cur.Kind {
	case TokAnd, TokOr, TokNot:
		condition = p.cur.Kind
		explicit = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	var filters []Expr
	for {
		switch p.cur.Kind {
		case TokWord, TokDate:
		case TokRParen:
			if len(filters) == 0 {
				return nil, newParseError(openPos, ErrEmptyQuery, "empty value list")
			}
		default:
			if p.cur.Kind == TokEOF {
				return nil, newParseError(openPos, ErrUnmatchedParen, "unmatched opening parenthesis")
			}
			return nil, p.unexpected()
		}
		if p.cur.Kind == TokRParen {
			break
		}

		lit, err := p.literal(p.cur)
		if err != nil {
			return nil, err
		}
		f := NewFilter(NewColumnDescriptor(nil), OpEq, lit)
		f.Column.Prepend(col.Tokens())
		if condition == TokNot {
			f.Invert()
		}
		filters = append(filters, f)
		if err := p.advance(); err != nil {
			return nil, err
		}

		if p.cur.Kind == TokAnd || p.cur.Kind == TokOr {
			switch {
			case !explicit:
				condition = p.cur.Kind
				explicit = true
			case condition != p.cur.Kind:
				return nil, newParseError(p.cur.Pos, ErrMixedOperators, "cannot mix %s with %s in a value list", p.cur.Kind, condition)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if len(filters) == 1 {
		return filters[0], nil
	}
	if condition == TokOr {
		return NewOr(filters...), nil
	}
	return NewAnd(filters...), nil
}

// literal builds a Literal from a word or date token.
func (p *parser) literal(tok Lexeme) (Literal, error) {
	if tok.Kind == TokDate {
		if p.dates == nil {
			return nil, newParseError(tok.Pos, ErrInvalidDate, "date literals are not supported here")
		}
		epoch, ok := p.dates.EpochMillis(tok.Lit)
		if !ok {
			return nil, newParseError(tok.Pos, ErrInvalidDate, "unrecognized date %q", tok.Lit)
		}
		return NewDateLiteral(epoch, tok.Lit), nil
	}
	return ClassifyLiteral(tok.Lit), nil
}

func rangeOp(k TokenKind) FilterOp {
	switch k {
	case TokLt:
		return OpLt
	case TokLte:
		return OpLte
	case TokGt:
		return OpGt
	default:
		return OpGte
	}
}

// flattenAnd combines two expressions into an AndExpr, flattening nested
// non-inverted AndExprs.
func flattenAnd(left, right Expr) Expr {
	var terms []Expr
	for _, e := range []Expr{left, right} {
		if a, ok := e.(*AndExpr); ok && !a.Inverted {
			terms = append(terms, a.Operands...)
		} else {
			terms = append(terms, e)
		}
	}
	return NewAnd(terms...)
}

// flattenOr combines two expressions into an OrExpr, flattening nested
// non-inverted OrExprs.
func flattenOr(left, right Expr) Expr {
	var terms []Expr
	for _, e := range []Expr{left, right} {
		if o, ok := e.(*OrExpr); ok && !o.Inverted {
			terms = append(terms, o.Operands...)
		} else {
			terms = append(terms, e)
		}
	}
	return NewOr(terms...)
}
