package sqlinline

const QSelectProfile = `--sql 1974cae0-d551-4c10-a463-14490a5a1d25
select user_id, name, locale, birth, created_at, updated_at
from profiles
where user_id = $1::text;
`

const QUpsertProfile = `--sql 61241399-f55a-4524-8c42-3c9ebb241664
insert into profiles (user_id, name, locale, birth, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::jsonb, now(), now())
on conflict (user_id) do update set
    name = excluded.name,
    locale = excluded.locale,
    birth = excluded.birth,
    updated_at = now()
returning created_at, updated_at;
`

const QProfileExists = `--sql e1ae9cf1-c4e9-44c0-81d3-5f1c04b74a15
select exists (select 1 from profiles where user_id = $1::text);
`
