package sqlinline

const QInsertReportJob = `--sql 8ab2e3ec-ac0c-4f0b-b6a7-044e49d2c5a9
insert into report_jobs (
    id, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key, owner_id, created_at, updated_at
)
values ($1::uuid, $2::text, $3::text, $4::text, $5::jsonb, $6::text, $7::text, $8::text, nullif($9::text, ''), now(), now())
returning created_at, updated_at;
`

const QReportCodeExists = `--sql dbc9dafe-6700-447e-b50e-a0e8ac3fa730
select exists (select 1 from report_jobs where code = $1::text);
`

const QSelectReportJobByID = `--sql 209aa56e-7e30-4da8-a82d-469e449e9e17
select id::text, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
       payload, failure, expires_at, coalesce(owner_id, ''), refresh_started_at, refresh_requested_at, started_at, created_at, updated_at
from report_jobs
where id = $1::uuid;
`

const QSelectReportJobByCode = `--sql 7bcd3975-7982-4715-a73c-69ac93e94d69
select id::text, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
       payload, failure, expires_at, coalesce(owner_id, ''), refresh_started_at, refresh_requested_at, started_at, created_at, updated_at
from report_jobs
where code = $1::text;
`

const QFindMatchingReportJob = `--sql 766254f5-afd8-400e-81aa-9e3583e4d860
select id::text, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
       payload, failure, expires_at, coalesce(owner_id, ''), refresh_started_at, refresh_requested_at, started_at, created_at, updated_at
from report_jobs
where kind = $1::text
  and fingerprint_hash = $2::text
  and (cardinality($3::text[]) = 0 or status = any($3::text[]))
order by created_at desc
limit 1;
`

const QFindPlaceholderReportJob = `--sql 24a46d3b-30aa-4242-b293-1aab30de9163
select id::text, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
       payload, failure, expires_at, coalesce(owner_id, ''), refresh_started_at, refresh_requested_at, started_at, created_at, updated_at
from report_jobs
where kind = $1::text
  and subject_key = $2::text
  and fingerprint_hash <> $3::text
  and status = 'completed'
order by created_at desc
limit 1;
`

const QSelectReportJobStatus = `--sql af91aac4-a0ed-4831-b3d3-dbf58c21e87f
select status from report_jobs where id = $1::uuid;
`

const QMarkReportJobInProgress = `--sql 4fdbedfc-9b12-4f89-a2a5-a2c34a437d57
update report_jobs
set status = 'in_progress', started_at = now(), updated_at = now()
where id = $1::uuid and status = 'pending';
`

const QCompleteReportJob = `--sql 1e3fef55-4f73-44f1-8563-78ada7e2b93e
update report_jobs
set status = 'completed', payload = $2::jsonb, expires_at = $3::timestamptz, failure = null, updated_at = now()
where id = $1::uuid and status = 'in_progress';
`

const QFailReportJob = `--sql 32ab8893-f47c-4fca-a8b2-d46c3b2d7a40
update report_jobs
set status = 'failed', failure = $2::jsonb, payload = null, updated_at = now()
where id = $1::uuid and status in ('pending', 'in_progress');
`

const QBeginReportRefresh = `--sql c019f9ad-42bd-4de5-b455-fcca3dd8493d
update report_jobs
set refresh_started_at = now(), refresh_requested_at = null
where id = $1::uuid
  and status = 'completed'
  and (refresh_started_at is null or refresh_started_at < $2::timestamptz);
`

const QCompleteReportRefresh = `--sql 7ff6c6b9-066f-48f2-a99e-6187a219fa7a
update report_jobs
set payload = $2::jsonb, expires_at = $3::timestamptz, refresh_started_at = null, refresh_requested_at = null,
    updated_at = now()
where id = $1::uuid and status = 'completed';
`

const QAbandonReportRefresh = `--sql 905fd6d7-2487-4f42-b34e-cd60a47e41b0
update report_jobs
set refresh_started_at = null, refresh_requested_at = null
where id = $1::uuid and status = 'completed';
`

const QDeferReportRefresh = `--sql c448b7d7-100a-4684-b261-d76fbac08319
update report_jobs
set refresh_started_at = null, refresh_requested_at = coalesce(refresh_requested_at, now())
where id = $1::uuid and status = 'completed';
`

const QClaimReportRefresh = `--sql 714a74e1-e432-437d-add1-918de26abe85
with next_job as (
    select id
    from report_jobs
    where status = 'completed' and refresh_requested_at is not null and refresh_started_at is null
    order by refresh_requested_at asc
    for update skip locked
    limit 1
)
update report_jobs
set refresh_started_at = now(), refresh_requested_at = null
where id in (select id from next_job)
returning id::text, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
          payload, failure, expires_at, coalesce(owner_id, ''), refresh_started_at, refresh_requested_at, started_at, created_at, updated_at;
`

const QClaimPendingReportJob = `--sql 78be3876-5f6d-438b-a399-96af4565c44a
with next_job as (
    select id
    from report_jobs
    where status = 'pending' and created_at <= $1::timestamptz
    order by created_at asc
    for update skip locked
    limit 1
)
update report_jobs
set status = 'in_progress', started_at = now(), updated_at = now()
where id in (select id from next_job)
returning id::text, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
          payload, failure, expires_at, coalesce(owner_id, ''), refresh_started_at, refresh_requested_at, started_at, created_at, updated_at;
`

const QFailStuckReportJobs = `--sql a56ca335-0430-4568-a77c-10876f353bb7
update report_jobs
set status = 'failed', failure = $2::jsonb, payload = null, updated_at = now()
where status = 'in_progress' and started_at < $1::timestamptz;
`

const QClearStaleReportRefreshes = `--sql 3e8222f7-498e-44f6-8952-9f364b3182de
update report_jobs
set refresh_started_at = null
where refresh_started_at < $1::timestamptz;
`
