package main

import (
	"fmt"
	"strconv"
)

// Integer expression evaluation for the bot's !calc command. We support
// + - * / and parentheses via shunting-yard into RPN, then a stack
// evaluation. Division truncates toward zero (Go's integer division).

type calcToken struct {
	op  byte
	num int64
}

func isCalcOp(ch byte) bool {
	return ch == '+' || ch == '-' || ch == '*' || ch == '/'
}

func calcPrecedence(op byte) int {
	if op == '*' || op == '/' {
		return 2
	}
	return 1
}

func tokenizeExpr(expr string) ([]calcToken, error) {
	var tokens []calcToken

	for i := 0; i < len(expr); {
		ch := expr[i]

		if ch == ' ' || ch == '\t' {
			i++
			continue
		}

		if ch >= '0' && ch <= '9' {
			j := i
			for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
				j++
			}
			n, err := strconv.ParseInt(expr[i:j], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("number out of range: %s", expr[i:j])
			}
			tokens = append(tokens, calcToken{num: n})
			i = j
			continue
		}

		if isCalcOp(ch) || ch == '(' || ch == ')' {
			tokens = append(tokens, calcToken{op: ch})
			i++
			continue
		}

		return nil, fmt.Errorf("invalid character '%c'", ch)
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	return tokens, nil
}

// toRPN converts infix tokens to reverse Polish notation. All operators are
// left associative.
func toRPN(tokens []calcToken) ([]calcToken, error) {
	var output []calcToken
	var ops []byte

	for _, tok := range tokens {
		switch {
		case tok.op == 0:
			output = append(output, tok)

		case tok.op == '(':
			ops = append(ops, '(')

		case tok.op == ')':
			matched := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top == '(' {
					matched = true
					break
				}
				output = append(output, calcToken{op: top})
			}
			if !matched {
				return nil, fmt.Errorf("mismatched parentheses")
			}

		default:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top == '(' || calcPrecedence(top) < calcPrecedence(tok.op) {
					break
				}
				output = append(output, calcToken{op: top})
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok.op)
		}
	}

	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top == '(' {
			return nil, fmt.Errorf("mismatched parentheses")
		}
		output = append(output, calcToken{op: top})
	}

	return output, nil
}

func evalRPN(rpn []calcToken) (int64, error) {
	var stack []int64

	for _, tok := range rpn {
		if tok.op == 0 {
			stack = append(stack, tok.num)
			continue
		}

		if len(stack) < 2 {
			return 0, fmt.Errorf("syntax error")
		}

		b := stack[len(stack)-1]
		a := stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		var result int64
		switch tok.op {
		case '+':
			result = a + b
		case '-':
			result = a - b
		case '*':
			result = a * b
		case '/':
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			result = a / b
		}

		stack = append(stack, result)
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("syntax error")
	}

	return stack[0], nil
}

// evalExpr evaluates an integer arithmetic expression.
func evalExpr(expr string) (int64, error) {
	tokens, err := tokenizeExpr(expr)
	if err != nil {
		return 0, err
	}

	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, err
	}

	return evalRPN(rpn)
}
